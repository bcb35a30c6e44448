package wizard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/charforge/internal/cloudsync"
	"github.com/starford/charforge/internal/draft"
	"github.com/starford/charforge/internal/kv"
	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/provider"
	"github.com/starford/charforge/internal/remote"
)

type fakeRemote struct {
	mu       sync.Mutex
	saves    []remote.SaveOptions
	conflict *models.CharacterSheet
	err      error
	records  map[string]*models.CharacterSheet
	adopted  []*models.CharacterSheet
	lists    int
}

func (f *fakeRemote) List(context.Context) ([]models.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Summary
	for _, r := range f.records {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (f *fakeRemote) Load(_ context.Context, id string) (*models.CharacterSheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || f.err != nil {
		return nil, errors.New("remote: request failed: status 404")
	}
	return r.Clone(), nil
}

func (f *fakeRemote) Save(_ context.Context, sheet *models.CharacterSheet, opts remote.SaveOptions) (remote.SaveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, opts)
	if f.err != nil {
		return remote.SaveResult{}, f.err
	}
	if f.conflict != nil && !opts.Force {
		return remote.SaveResult{Conflict: f.conflict.Clone()}, nil
	}
	if f.records == nil {
		f.records = map[string]*models.CharacterSheet{}
	}
	f.records[sheet.ID] = sheet.Clone()
	return remote.SaveResult{Saved: sheet}, nil
}

func (f *fakeRemote) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRemote) Adopt(sheet *models.CharacterSheet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adopted = append(f.adopted, sheet.Clone())
}

func (f *fakeRemote) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

type fakeRules string

func (r fakeRules) Status(context.Context) string { return string(r) }

type fixture struct {
	ctrl     *Controller
	drafts   *draft.Store
	settings *draft.Settings
	remote   *fakeRemote
	sync     *cloudsync.Orchestrator
	exports  string
}

func newFixture(t *testing.T, store kv.Store) *fixture {
	t.Helper()
	if store == nil {
		var err error
		store, err = kv.New(memfs.New())
		require.NoError(t, err)
	}
	f := &fixture{
		drafts:   draft.NewStore(store, nil),
		settings: draft.NewSettings(store, nil),
		remote:   &fakeRemote{},
		exports:  t.TempDir(),
	}
	reg, err := provider.NewRegistry(
		provider.NewDraft(f.drafts),
		provider.NewCloud(f.remote, nil),
		provider.NewExport(f.exports, nil),
	)
	require.NoError(t, err)

	f.sync = cloudsync.New(f.remote,
		cloudsync.WithDelay(time.Hour),
		cloudsync.WithRecorder(f.settings),
		cloudsync.WithEnabled(f.settings.CloudEnabled),
	)
	t.Cleanup(f.sync.Stop)

	f.ctrl = New(Deps{
		Drafts:   f.drafts,
		Settings: f.settings,
		Registry: reg,
		Sync:     f.sync,
		Rules:    fakeRules("rules v1.2.0"),
	})
	return f
}

func TestNavigationIsBounded(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl

	assert.Equal(t, StepBasics, c.View().Step.ID)
	assert.Equal(t, StepBasics, c.Prev())

	for i := 0; i < 10; i++ {
		c.Next()
	}
	assert.Equal(t, StepReview, c.View().Step.ID)
	assert.Equal(t, 4, c.View().StepIndex)

	require.NoError(t, c.Goto(StepSkills))
	assert.Equal(t, StepAttributes, c.Prev())

	assert.ErrorIs(t, c.Goto("nowhere"), ErrUnknownStep)
	assert.Equal(t, string(StepAttributes), f.settings.Step())
}

func TestStepRestoredFromSettings(t *testing.T) {
	store, err := kv.New(memfs.New())
	require.NoError(t, err)

	first := newFixture(t, store)
	require.NoError(t, first.ctrl.Goto(StepGear))
	first.ctrl.SetName("Nyx")

	second := newFixture(t, store)
	v := second.ctrl.View()
	assert.Equal(t, StepGear, v.Step.ID)
	assert.Equal(t, "Nyx", v.Sheet.Name)
	assert.Equal(t, first.ctrl.Sheet().ID, v.Sheet.ID)
}

func TestEditsRefreshTimestampAndPersist(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	before := c.Sheet().UpdatedAt

	c.SetName("Nyx")
	c.SetConcept("Street doc with a debt")
	c.SetBackground("Owes the wrong people.")
	c.SetNotes("n")
	c.SetLevel(3)
	require.NoError(t, c.SetAttribute(models.AttrPhys, 2))
	assert.ErrorIs(t, c.SetAttribute("luck", 1), ErrUnknownAttribute)

	sheet := c.Sheet()
	assert.True(t, sheet.UpdatedAt.After(before))
	assert.Equal(t, "Nyx", sheet.Name)
	assert.Equal(t, 3, sheet.Level)
	assert.Equal(t, 2, sheet.Attributes[models.AttrPhys])

	saved, ok := f.drafts.Load()
	require.True(t, ok)
	assert.Equal(t, "Street doc with a debt", saved.Concept)
	assert.True(t, saved.UpdatedAt.Equal(sheet.UpdatedAt))
}

func TestSkillAndGearEdits(t *testing.T) {
	c := newFixture(t, nil).ctrl

	skill := c.AddSkill("Athletics", 1)
	assert.NotEmpty(t, skill.Key)
	require.NoError(t, c.UpdateSkill(skill.Key, func(e *models.SkillEntry) { e.Rank = 3 }))
	assert.Equal(t, 3, c.Sheet().Skills[0].Rank)
	assert.ErrorIs(t, c.UpdateSkill("missing", func(*models.SkillEntry) {}), ErrUnknownEntry)

	gear, err := c.AddGear("Shotgun", "")
	require.NoError(t, err)
	assert.Equal(t, models.GearItem, gear.Type)
	require.NoError(t, c.UpdateGear(gear.ID, func(e *models.GearEntry) { e.Type = models.GearWeapon }))
	assert.Equal(t, models.GearWeapon, c.Sheet().Gear[0].Type)

	before := c.Sheet()
	err = c.UpdateGear(gear.ID, func(e *models.GearEntry) { e.Type = "laser" })
	assert.ErrorIs(t, err, ErrUnknownGearType)
	assert.Equal(t, before.UpdatedAt, c.Sheet().UpdatedAt)

	_, err = c.AddGear("Thing", "laser")
	assert.ErrorIs(t, err, ErrUnknownGearType)

	require.NoError(t, c.RemoveSkill(skill.Key))
	require.NoError(t, c.RemoveGear(gear.ID))
	assert.Empty(t, c.Sheet().Skills)
	assert.Empty(t, c.Sheet().Gear)
	assert.ErrorIs(t, c.RemoveGear(gear.ID), ErrUnknownEntry)
}

func TestImportWithoutIDLandsOnReview(t *testing.T) {
	c := newFixture(t, nil).ctrl

	ok := c.Import(strings.NewReader(`{"name":"Nyx","attributes":{"phys":3}}`))
	require.True(t, ok)

	v := c.View()
	assert.Equal(t, StepReview, v.Step.ID)
	assert.NotEmpty(t, v.Sheet.ID)
	assert.Equal(t, "Nyx", v.Sheet.Name)
	assert.Equal(t, 3, v.Sheet.Attributes[models.AttrPhys])
	assert.Empty(t, v.ImportError)
}

func TestImportKeepsIdentifier(t *testing.T) {
	c := newFixture(t, nil).ctrl
	require.True(t, c.Import(strings.NewReader(`{"id":"keep-me","name":"Nyx"}`)))
	assert.Equal(t, "keep-me", c.Sheet().ID)
}

func TestImportGarbageSetsError(t *testing.T) {
	c := newFixture(t, nil).ctrl
	c.SetName("Before")

	assert.False(t, c.Import(strings.NewReader("not json")))
	v := c.View()
	assert.Equal(t, MsgImportFailed, v.ImportError)
	assert.Equal(t, "Before", v.Sheet.Name)
	assert.Equal(t, StepBasics, v.Step.ID)

	assert.False(t, c.ImportFile("/does/not/exist.json"))
}

func TestResetYieldsBlankRecord(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	c.SetName("Nyx")
	c.Next()
	oldID := c.Sheet().ID

	c.Reset()
	v := c.View()
	assert.Equal(t, StepBasics, v.Step.ID)
	assert.Empty(t, v.Sheet.Name)
	assert.NotEqual(t, oldID, v.Sheet.ID)
	assert.Equal(t, 1, v.Sheet.Level)

	saved, ok := f.drafts.Load()
	require.True(t, ok)
	assert.Equal(t, v.Sheet.ID, saved.ID)
}

func TestSaveThroughProviders(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	c.SetName("Nyx")

	res := c.Save(context.Background())
	assert.True(t, res.OK())
	assert.Equal(t, "Draft saved", c.View().SaveStatus)

	require.NoError(t, c.SelectProvider(provider.IDExport))
	res = c.Save(context.Background())
	require.True(t, res.OK())
	v := c.View()
	assert.Equal(t, "Downloaded JSON", v.SaveStatus)
	assert.Contains(t, v.SavedPath, "Nyx.json")

	assert.ErrorIs(t, c.SelectProvider("ftp"), ErrUnknownProvider)
	assert.Equal(t, provider.IDExport, f.settings.StorageTarget())
}

func TestCloudSaveValidationFailure(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	require.NoError(t, c.SelectProvider(provider.IDCloud))

	res := c.Save(context.Background())
	assert.Equal(t, provider.StatusFailed, res.Status)
	v := c.View()
	assert.Equal(t, MsgSaveFailed, v.SaveStatus)
	assert.Equal(t, provider.MsgInvalid, v.CloudError)
	assert.NotEmpty(t, v.Problems)
	assert.Empty(t, f.remote.saves)
}

func TestConflictLoadRemote(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	c.SetName("Local")
	server := c.Sheet()
	server.Name = "Server"
	f.remote.conflict = server

	require.NoError(t, c.SelectProvider(provider.IDCloud))
	res := c.Save(context.Background())
	assert.Equal(t, provider.StatusConflict, res.Status)

	v := c.View()
	assert.Equal(t, MsgSaveConflict, v.SaveStatus)
	assert.Equal(t, MsgConflictError, v.CloudError)
	require.NotNil(t, v.Conflict)

	require.True(t, c.LoadRemote())
	v = c.View()
	assert.Equal(t, "Server", v.Sheet.Name)
	assert.Nil(t, v.Conflict)
	assert.Equal(t, StepReview, v.Step.ID)
	assert.False(t, c.LoadRemote())
}

func TestConflictOverwriteRemote(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	c.SetName("Local")
	f.remote.conflict = c.Sheet()

	require.NoError(t, c.SelectProvider(provider.IDCloud))
	c.Save(context.Background())

	require.True(t, c.OverwriteRemote(context.Background()))
	v := c.View()
	assert.Equal(t, MsgOverwrote, v.SaveStatus)
	assert.Nil(t, v.Conflict)
	assert.True(t, f.remote.saves[len(f.remote.saves)-1].Force)

	f.remote.err = errors.New("remote: request failed")
	assert.False(t, c.OverwriteRemote(context.Background()))
	assert.Equal(t, MsgForceFailed, c.View().CloudError)
}

func TestCloudListAndLoad(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl

	stored := models.NewBlank()
	stored.Name = "Stored"
	f.remote.records = map[string]*models.CharacterSheet{stored.ID: stored}

	c.RefreshCloudList(context.Background())
	assert.Empty(t, c.View().CloudList)

	c.SetCloudEnabled(true)
	c.RefreshCloudList(context.Background())
	require.Len(t, c.View().CloudList, 1)

	require.True(t, c.LoadFromCloud(context.Background(), stored.ID))
	v := c.View()
	assert.Equal(t, "Stored", v.Sheet.Name)
	assert.Equal(t, StepReview, v.Step.ID)

	assert.False(t, c.LoadFromCloud(context.Background(), "missing"))
	assert.Equal(t, MsgLoadFailed, c.View().CloudError)

	require.True(t, c.RemoveFromCloud(context.Background(), stored.ID))
	assert.Empty(t, c.View().CloudList)

	f.remote.err = errors.New("down")
	c.RefreshCloudList(context.Background())
	assert.Equal(t, MsgListFailed, c.View().CloudError)
}

func TestCloudSettingsPersist(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl

	c.SetAPIKey("secret")
	c.SetCloudEnabled(true)
	assert.Equal(t, "secret", f.settings.APIKey())
	assert.True(t, f.settings.CloudEnabled())
	assert.True(t, c.View().HasAPIKey)
	assert.True(t, f.sync.Pending())
}

func TestEditsScheduleSyncOnlyWhenEnabled(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl

	c.SetName("Off")
	assert.False(t, f.sync.Pending())

	c.SetCloudEnabled(true)
	c.SetName("On")
	assert.True(t, f.sync.Pending())

	f.sync.Flush(context.Background())
	require.Len(t, f.remote.saves, 1)
	assert.Contains(t, c.View().CloudStatus, "synced ")
	_, ok := f.settings.LastSync()
	assert.True(t, ok)
}

func TestSyncNowMirrorsStatus(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	f.remote.err = errors.New("remote: request failed: boom")

	st := c.SyncNow(context.Background())
	assert.Equal(t, cloudsync.StateFailed, st.State)
	v := c.View()
	assert.Equal(t, cloudsync.MsgSyncFailed, v.CloudStatus)
	assert.Contains(t, v.CloudError, "boom")
}

func TestCheckRules(t *testing.T) {
	c := newFixture(t, nil).ctrl
	assert.Equal(t, MsgRulesChecking, c.View().RulesStatus)
	assert.Equal(t, "rules v1.2.0", c.CheckRules(context.Background()))
	assert.Equal(t, "rules v1.2.0", c.View().RulesStatus)
}

func TestViewIsSnapshot(t *testing.T) {
	c := newFixture(t, nil).ctrl
	c.SetName("Nyx")
	v := c.View()
	v.Sheet.Name = "mutated"
	v.Sheet.Attributes[models.AttrDex] = 9
	assert.Equal(t, "Nyx", c.Sheet().Name)
	assert.Equal(t, 0, c.Sheet().Attributes[models.AttrDex])
}

func TestLoadRemoteAdoptsServerVersionAndAdvancesTimestamp(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	c.SetName("Local")
	before := c.Sheet().UpdatedAt

	server := c.Sheet()
	server.Name = "Server"
	server.UpdatedAt = before.Add(-time.Minute)
	f.remote.conflict = server

	require.NoError(t, c.SelectProvider(provider.IDCloud))
	c.Save(context.Background())
	require.True(t, c.LoadRemote())

	after := c.Sheet()
	assert.Equal(t, "Server", after.Name)
	assert.True(t, after.UpdatedAt.After(before), "before=%s after=%s", before, after.UpdatedAt)

	draft, ok := f.drafts.Load()
	require.True(t, ok)
	assert.True(t, draft.UpdatedAt.Equal(after.UpdatedAt))

	f.remote.mu.Lock()
	defer f.remote.mu.Unlock()
	require.Len(t, f.remote.adopted, 1)
	assert.True(t, f.remote.adopted[0].UpdatedAt.Equal(server.UpdatedAt))
}

func TestOverwriteRemoteRefreshesCloudList(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl
	c.SetCloudEnabled(true)
	c.SetName("Local")
	f.remote.conflict = c.Sheet()

	require.NoError(t, c.SelectProvider(provider.IDCloud))
	c.Save(context.Background())
	require.NotNil(t, c.View().Conflict)
	assert.Empty(t, c.View().CloudList)

	require.True(t, c.OverwriteRemote(context.Background()))
	v := c.View()
	require.Len(t, v.CloudList, 1)
	assert.Equal(t, "Local", v.CloudList[0].Name)
}

func TestDisablingCloudDropsScheduledSync(t *testing.T) {
	f := newFixture(t, nil)
	c := f.ctrl

	c.SetCloudEnabled(true)
	c.SetName("Queued")
	require.True(t, f.sync.Pending())

	c.SetCloudEnabled(false)
	assert.False(t, f.sync.Pending())
	assert.NotEqual(t, cloudsync.MsgPending, c.View().CloudStatus)

	f.sync.Flush(context.Background())
	assert.Zero(t, f.remote.saveCount())
}
