package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/starford/charforge/internal/cloudsync"
	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/provider"
	"github.com/starford/charforge/internal/transfer"
)

// Input errors. Operation failures are never returned; they become status
// text on the view.
var (
	ErrUnknownStep      = errors.New("wizard: unknown step")
	ErrUnknownAttribute = errors.New("wizard: unknown attribute")
	ErrUnknownEntry     = errors.New("wizard: no such entry")
	ErrUnknownProvider  = errors.New("wizard: unknown storage target")
	ErrUnknownGearType  = errors.New("wizard: unknown gear type")
)

// Status texts shown on the view.
const (
	MsgImportFailed   = "Could not read that file."
	MsgSaving         = "saving..."
	MsgSaved          = "saved"
	MsgSaveConflict   = "conflict"
	MsgSaveFailed     = "failed"
	MsgConflictError  = "Conflict: remote has a newer version."
	MsgSaveFailedText = "Save failed"
	MsgOverwrote      = "overwrote remote"
	MsgForceFailed    = "Force save failed"
	MsgListFailed     = "Could not load cloud list."
	MsgLoadFailed     = "Could not load that character."
	MsgDeleteFailed   = "Could not delete that character."
	MsgRulesChecking  = "checking..."
	MsgRulesOffline   = "offline"
)

// DraftStore is the local draft slot.
type DraftStore interface {
	Load() (*models.CharacterSheet, bool)
	Save(sheet *models.CharacterSheet)
	Clear()
}

// Settings holds the persisted client preferences.
type Settings interface {
	CloudEnabled() bool
	SetCloudEnabled(enabled bool)
	APIKey() string
	SetAPIKey(key string)
	Step() string
	SetStep(step string)
	StorageTarget() string
	SetStorageTarget(id string)
}

// Syncer is the debounced remote sync.
type Syncer interface {
	Changed(sheet *models.CharacterSheet)
	SyncNow(ctx context.Context, sheet *models.CharacterSheet) cloudsync.Status
	Status() cloudsync.Status
	OnResult(fn func(cloudsync.Status))
	Cancel()
}

// RulesChecker reports the rules service status line.
type RulesChecker interface {
	Status(ctx context.Context) string
}

// Deps are the collaborators of a Controller. Sync and Rules are optional.
type Deps struct {
	Drafts   DraftStore
	Settings Settings
	Registry *provider.Registry
	Sync     Syncer
	Rules    RulesChecker
	Logger   *slog.Logger
}

// View is an immutable snapshot of the wizard state.
type View struct {
	Sheet     *models.CharacterSheet `json:"sheet"`
	Step      StepInfo               `json:"step"`
	StepIndex int                    `json:"stepIndex"`
	Steps     []StepInfo             `json:"steps"`

	ImportError string `json:"importError,omitempty"`

	CloudEnabled bool             `json:"cloudEnabled"`
	HasAPIKey    bool             `json:"hasApiKey"`
	CloudStatus  string           `json:"cloudStatus"`
	CloudError   string           `json:"cloudError,omitempty"`
	CloudList    []models.Summary `json:"cloudList"`

	StorageTarget string                 `json:"storageTarget"`
	Providers     []provider.Descriptor  `json:"providers"`
	SaveStatus    string                 `json:"saveStatus,omitempty"`
	SavedPath     string                 `json:"savedPath,omitempty"`
	Problems      []string               `json:"problems,omitempty"`
	Conflict      *models.CharacterSheet `json:"conflict,omitempty"`

	RulesStatus string `json:"rulesStatus"`
}

// Controller is the top-level view-state holder.
type Controller struct {
	drafts   DraftStore
	settings Settings
	registry *provider.Registry
	sync     Syncer
	rules    RulesChecker
	logger   *slog.Logger

	mu           sync.Mutex
	sheet        *models.CharacterSheet
	step         Step
	importError  string
	cloudEnabled bool
	cloudStatus  string
	cloudError   string
	cloudList    []models.Summary
	target       string
	saveStatus   string
	savedPath    string
	problems     []string
	conflict     *models.CharacterSheet
	rulesStatus  string
}

// New restores the wizard from the draft store and settings.
func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		drafts:      deps.Drafts,
		settings:    deps.Settings,
		registry:    deps.Registry,
		sync:        deps.Sync,
		rules:       deps.Rules,
		logger:      logger,
		step:        StepBasics,
		cloudStatus: cloudsync.MsgNotSynced,
		rulesStatus: MsgRulesChecking,
	}

	if sheet, ok := c.drafts.Load(); ok {
		sheet.Normalize()
		c.sheet = sheet
	} else {
		c.sheet = models.NewBlank()
	}
	if step, err := ParseStep(c.settings.Step()); err == nil {
		c.step = step
	}
	c.cloudEnabled = c.settings.CloudEnabled()
	c.target = c.registry.Resolve(c.settings.StorageTarget()).ID()

	if c.sync != nil {
		c.cloudStatus = c.sync.Status().Message
		c.sync.OnResult(c.onSync)
	}
	return c
}

func (c *Controller) onSync(st cloudsync.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cloudStatus = st.Message
	c.cloudError = st.Error
	if st.Conflict != nil {
		c.conflict = st.Conflict.Clone()
	}
}

// View returns a snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.step.Index()
	var conflict *models.CharacterSheet
	if c.conflict != nil {
		conflict = c.conflict.Clone()
	}
	return View{
		Sheet:         c.sheet.Clone(),
		Step:          Steps[idx],
		StepIndex:     idx,
		Steps:         append([]StepInfo(nil), Steps...),
		ImportError:   c.importError,
		CloudEnabled:  c.cloudEnabled,
		HasAPIKey:     c.settings.APIKey() != "",
		CloudStatus:   c.cloudStatus,
		CloudError:    c.cloudError,
		CloudList:     append([]models.Summary(nil), c.cloudList...),
		StorageTarget: c.target,
		Providers:     c.registry.Descriptors(),
		SaveStatus:    c.saveStatus,
		SavedPath:     c.savedPath,
		Problems:      append([]string(nil), c.problems...),
		Conflict:      conflict,
		RulesStatus:   c.rulesStatus,
	}
}

// Sheet returns a copy of the record being edited.
func (c *Controller) Sheet() *models.CharacterSheet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sheet.Clone()
}

// --- navigation ---

// Goto jumps to step.
func (c *Controller) Goto(step Step) error {
	if step.Index() < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}
	c.setStep(step)
	return nil
}

// Next moves one step forward, stopping at review.
func (c *Controller) Next() Step {
	c.mu.Lock()
	idx := c.step.Index()
	c.mu.Unlock()
	if idx < len(Steps)-1 {
		idx++
	}
	return c.setStep(Steps[idx].ID)
}

// Prev moves one step back, stopping at basics.
func (c *Controller) Prev() Step {
	c.mu.Lock()
	idx := c.step.Index()
	c.mu.Unlock()
	if idx > 0 {
		idx--
	}
	return c.setStep(Steps[idx].ID)
}

func (c *Controller) setStep(step Step) Step {
	c.mu.Lock()
	c.step = step
	c.mu.Unlock()
	c.settings.SetStep(string(step))
	return step
}

// --- record edits ---

// Update applies edit to a copy of the record, refreshes its timestamp,
// persists the draft and schedules a sync.
func (c *Controller) Update(edit func(*models.CharacterSheet)) *models.CharacterSheet {
	c.mu.Lock()
	next := c.sheet.Clone()
	edit(next)
	c.sheet = c.advance(next)
	snapshot := c.sheet.Clone()
	c.mu.Unlock()

	c.committed(snapshot)
	return snapshot
}

// updateErr is Update for edits that can reject their input. A rejected
// edit leaves the record untouched.
func (c *Controller) updateErr(edit func(*models.CharacterSheet) error) error {
	c.mu.Lock()
	next := c.sheet.Clone()
	if err := edit(next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.sheet = c.advance(next)
	snapshot := c.sheet.Clone()
	c.mu.Unlock()

	c.committed(snapshot)
	return nil
}

// advance stamps next with a time after both its own and the current
// record's UpdatedAt. Callers hold c.mu.
func (c *Controller) advance(next *models.CharacterSheet) *models.CharacterSheet {
	if next.UpdatedAt.Before(c.sheet.UpdatedAt) {
		next.UpdatedAt = c.sheet.UpdatedAt
	}
	return next.Touch()
}

// replace installs sheet as is, without touching its timestamp.
func (c *Controller) replace(sheet *models.CharacterSheet) {
	c.mu.Lock()
	c.sheet = sheet.Clone()
	c.mu.Unlock()
	c.committed(sheet)
}

func (c *Controller) committed(sheet *models.CharacterSheet) {
	c.drafts.Save(sheet)
	if c.sync != nil {
		c.sync.Changed(sheet)
	}
}

// SetName sets the character name.
func (c *Controller) SetName(v string) {
	c.Update(func(s *models.CharacterSheet) { s.Name = v })
}

// SetConcept sets the one-line concept.
func (c *Controller) SetConcept(v string) {
	c.Update(func(s *models.CharacterSheet) { s.Concept = v })
}

// SetBackground sets the background text.
func (c *Controller) SetBackground(v string) {
	c.Update(func(s *models.CharacterSheet) { s.Background = v })
}

// SetNotes sets the free-form notes.
func (c *Controller) SetNotes(v string) {
	c.Update(func(s *models.CharacterSheet) { s.Notes = v })
}

// SetLevel sets the level. Range checks happen at save time.
func (c *Controller) SetLevel(v int) {
	c.Update(func(s *models.CharacterSheet) { s.Level = v })
}

// SetAttribute sets one core attribute.
func (c *Controller) SetAttribute(key models.AttributeKey, v int) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAttribute, key)
	}
	c.Update(func(s *models.CharacterSheet) { s.Attributes[key] = v })
	return nil
}

// AddSkill appends a skill with a fresh key and returns it.
func (c *Controller) AddSkill(label string, rank int) models.SkillEntry {
	entry := models.SkillEntry{Key: models.NewID(), Label: label, Rank: rank}
	c.Update(func(s *models.CharacterSheet) { s.Skills = append(s.Skills, entry) })
	return entry
}

// UpdateSkill edits the skill with the given key.
func (c *Controller) UpdateSkill(key string, edit func(*models.SkillEntry)) error {
	return c.updateErr(func(s *models.CharacterSheet) error {
		for i := range s.Skills {
			if s.Skills[i].Key == key {
				edit(&s.Skills[i])
				return nil
			}
		}
		return fmt.Errorf("%w: skill %q", ErrUnknownEntry, key)
	})
}

// RemoveSkill deletes the skill with the given key.
func (c *Controller) RemoveSkill(key string) error {
	return c.updateErr(func(s *models.CharacterSheet) error {
		for i := range s.Skills {
			if s.Skills[i].Key == key {
				s.Skills = append(s.Skills[:i], s.Skills[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: skill %q", ErrUnknownEntry, key)
	})
}

// AddGear appends a gear entry with a fresh id. An empty type means item.
func (c *Controller) AddGear(name string, typ models.GearType) (models.GearEntry, error) {
	if typ == "" {
		typ = models.GearItem
	}
	if !validGearType(typ) {
		return models.GearEntry{}, fmt.Errorf("%w: %q", ErrUnknownGearType, typ)
	}
	entry := models.GearEntry{ID: models.NewID(), Name: name, Type: typ}
	c.Update(func(s *models.CharacterSheet) { s.Gear = append(s.Gear, entry) })
	return entry, nil
}

// UpdateGear edits the gear entry with the given id.
func (c *Controller) UpdateGear(id string, edit func(*models.GearEntry)) error {
	return c.updateErr(func(s *models.CharacterSheet) error {
		for i := range s.Gear {
			if s.Gear[i].ID == id {
				edit(&s.Gear[i])
				if !validGearType(s.Gear[i].Type) {
					return fmt.Errorf("%w: %q", ErrUnknownGearType, s.Gear[i].Type)
				}
				return nil
			}
		}
		return fmt.Errorf("%w: gear %q", ErrUnknownEntry, id)
	})
}

// RemoveGear deletes the gear entry with the given id.
func (c *Controller) RemoveGear(id string) error {
	return c.updateErr(func(s *models.CharacterSheet) error {
		for i := range s.Gear {
			if s.Gear[i].ID == id {
				s.Gear = append(s.Gear[:i], s.Gear[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: gear %q", ErrUnknownEntry, id)
	})
}

func validGearType(t models.GearType) bool {
	for _, known := range models.GearTypes {
		if t == known {
			return true
		}
	}
	return false
}

// --- file transfer ---

// Import replaces the record with the JSON read from r and jumps to review.
// It reports false and sets the import error when r cannot be parsed.
func (c *Controller) Import(r io.Reader) bool {
	sheet, err := transfer.Read(r)
	if err != nil {
		c.logger.Debug("wizard: import failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.importError = MsgImportFailed
		c.mu.Unlock()
		return false
	}
	sheet.Normalize()

	c.mu.Lock()
	c.importError = ""
	c.mu.Unlock()

	c.Update(func(s *models.CharacterSheet) { *s = *sheet })
	c.setStep(StepReview)
	return true
}

// ImportFile is Import for a file on disk.
func (c *Controller) ImportFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		c.logger.Debug("wizard: import open failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.importError = MsgImportFailed
		c.mu.Unlock()
		return false
	}
	defer f.Close()
	return c.Import(f)
}

// Export writes the record as pretty JSON to w.
func (c *Controller) Export(w io.Writer) error {
	return transfer.Write(w, c.Sheet())
}

// Reset discards the draft and starts over with a blank record.
func (c *Controller) Reset() {
	c.drafts.Clear()
	blank := models.NewBlank()

	c.mu.Lock()
	c.importError = ""
	c.conflict = nil
	c.problems = nil
	c.saveStatus = ""
	c.savedPath = ""
	c.mu.Unlock()

	c.replace(blank)
	c.setStep(StepBasics)
}

// --- save flow ---

// Save writes the record through the active storage target.
func (c *Controller) Save(ctx context.Context) provider.Result {
	c.mu.Lock()
	c.saveStatus = MsgSaving
	c.cloudError = ""
	c.conflict = nil
	c.problems = nil
	c.savedPath = ""
	sheet := c.sheet.Clone()
	target := c.target
	c.mu.Unlock()

	p := c.registry.Resolve(target)
	res := p.Save(ctx, sheet)

	c.mu.Lock()
	switch res.Status {
	case provider.StatusOK:
		c.saveStatus = res.Message
		if c.saveStatus == "" {
			c.saveStatus = MsgSaved
		}
		c.savedPath = res.Path
	case provider.StatusConflict:
		c.saveStatus = MsgSaveConflict
		c.cloudError = MsgConflictError
		c.conflict = res.Conflict.Clone()
	default:
		c.saveStatus = MsgSaveFailed
		c.cloudError = res.Message
		if c.cloudError == "" {
			c.cloudError = MsgSaveFailedText
		}
		c.problems = res.Problems
	}
	c.mu.Unlock()

	c.logger.Info("wizard: save",
		slog.String("target", p.ID()),
		slog.String("status", string(res.Status)),
	)
	if res.OK() && p.ID() == provider.IDCloud {
		c.RefreshCloudList(ctx)
	}
	return res
}

// LoadRemote adopts the pending conflict record and jumps to review. The
// server version becomes the precondition for the next cloud save. It
// reports false when there is no pending conflict.
func (c *Controller) LoadRemote() bool {
	c.mu.Lock()
	remote := c.conflict
	c.conflict = nil
	if remote != nil {
		c.cloudError = ""
	}
	c.mu.Unlock()
	if remote == nil {
		return false
	}

	if a, ok := c.cloud().(provider.Adopter); ok {
		a.Adopt(remote)
	}
	c.Update(func(s *models.CharacterSheet) { *s = *remote.Clone() })
	c.setStep(StepReview)
	return true
}

// OverwriteRemote force-saves the local record over the remote one.
func (c *Controller) OverwriteRemote(ctx context.Context) bool {
	sheet := c.Sheet()

	var res provider.Result
	if p, ok := c.registry.Get(provider.IDCloud); ok {
		if f, ok := p.(provider.Forcer); ok {
			res = f.ForceSave(ctx, sheet)
		}
	}

	c.mu.Lock()
	if !res.OK() {
		c.cloudError = MsgForceFailed
		c.problems = res.Problems
		c.mu.Unlock()
		return false
	}
	c.conflict = nil
	c.cloudError = ""
	c.saveStatus = MsgOverwrote
	c.mu.Unlock()

	c.RefreshCloudList(ctx)
	return true
}

// --- cloud ---

// SetCloudEnabled toggles automatic sync. Enabling schedules a sync of the
// current record, disabling drops any sync still waiting to run.
func (c *Controller) SetCloudEnabled(enabled bool) {
	c.settings.SetCloudEnabled(enabled)
	c.mu.Lock()
	c.cloudEnabled = enabled
	sheet := c.sheet.Clone()
	c.mu.Unlock()

	if c.sync == nil {
		return
	}
	if enabled {
		c.sync.Changed(sheet)
	} else {
		c.sync.Cancel()
	}
}

// SetAPIKey stores the bearer credential used by remote calls.
func (c *Controller) SetAPIKey(key string) {
	c.settings.SetAPIKey(key)
}

// SelectProvider chooses the storage target used by Save.
func (c *Controller) SelectProvider(id string) error {
	if _, ok := c.registry.Get(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	c.settings.SetStorageTarget(id)
	c.mu.Lock()
	c.target = id
	c.mu.Unlock()
	return nil
}

func (c *Controller) cloud() provider.Provider {
	p, _ := c.registry.Get(provider.IDCloud)
	return p
}

// RefreshCloudList reloads the remote listing. It does nothing while cloud
// sync is disabled.
func (c *Controller) RefreshCloudList(ctx context.Context) {
	c.mu.Lock()
	enabled := c.cloudEnabled
	c.mu.Unlock()
	if !enabled {
		return
	}

	lister, ok := c.cloud().(provider.Lister)
	if !ok {
		return
	}
	list, err := lister.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Debug("wizard: cloud list failed", slog.String("error", err.Error()))
		c.cloudError = MsgListFailed
		return
	}
	c.cloudList = list
}

// LoadFromCloud replaces the record with a remote one and jumps to review.
func (c *Controller) LoadFromCloud(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	c.cloudError = ""
	c.mu.Unlock()

	loader, ok := c.cloud().(provider.Loader)
	if !ok {
		return false
	}
	sheet, err := loader.Load(ctx, id)
	if err != nil {
		c.logger.Debug("wizard: cloud load failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.cloudError = MsgLoadFailed
		c.mu.Unlock()
		return false
	}
	sheet.Normalize()

	c.Update(func(s *models.CharacterSheet) { *s = *sheet })
	c.setStep(StepReview)
	return true
}

// RemoveFromCloud deletes a remote record and refreshes the listing.
func (c *Controller) RemoveFromCloud(ctx context.Context, id string) bool {
	remover, ok := c.cloud().(provider.Remover)
	if !ok {
		return false
	}
	if err := remover.Remove(ctx, id); err != nil {
		c.logger.Debug("wizard: cloud delete failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.cloudError = MsgDeleteFailed
		c.mu.Unlock()
		return false
	}
	c.RefreshCloudList(ctx)
	return true
}

// SyncNow pushes the record immediately, bypassing the debounce.
func (c *Controller) SyncNow(ctx context.Context) cloudsync.Status {
	if c.sync == nil {
		return cloudsync.Status{}
	}
	c.mu.Lock()
	c.cloudError = ""
	sheet := c.sheet.Clone()
	c.mu.Unlock()
	return c.sync.SyncNow(ctx, sheet)
}

// CheckRules refreshes the rules status line.
func (c *Controller) CheckRules(ctx context.Context) string {
	status := MsgRulesOffline
	if c.rules != nil {
		status = c.rules.Status(ctx)
	}
	c.mu.Lock()
	c.rulesStatus = status
	c.mu.Unlock()
	return status
}
