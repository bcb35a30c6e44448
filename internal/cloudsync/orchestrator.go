// Package cloudsync debounces record changes into remote saves.
package cloudsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/charforge/internal/models"
	"github.com/starford/charforge/internal/remote"
)

// DefaultDelay is the quiet period after the last change before a save.
const DefaultDelay = 800 * time.Millisecond

// Status texts.
const (
	MsgNotSynced    = "not synced"
	MsgPending      = "pending"
	MsgSyncing      = "syncing..."
	MsgSyncFailed   = "sync failed"
	MsgConflict     = "conflict"
	ErrTextDefault  = "Sync failed"
	ErrTextConflict = "Conflict: remote has a newer version."
)

// State is the coarse sync state.
type State string

const (
	StateIdle     State = "idle"
	StatePending  State = "pending"
	StateSyncing  State = "syncing"
	StateSynced   State = "synced"
	StateConflict State = "conflict"
	StateFailed   State = "failed"
)

// Status is a snapshot of the last sync outcome.
type Status struct {
	State    State
	Message  string
	Error    string
	LastSync time.Time
	Conflict *models.CharacterSheet
}

// Saver is the remote write used by the orchestrator.
type Saver interface {
	Save(ctx context.Context, sheet *models.CharacterSheet, opts remote.SaveOptions) (remote.SaveResult, error)
}

// Recorder persists the last successful sync time.
type Recorder interface {
	LastSync() (time.Time, bool)
	SetLastSync(at time.Time)
}

// Orchestrator owns the single debounce timer.
type Orchestrator struct {
	saver    Saver
	recorder Recorder
	enabled  func() bool
	delay    time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	pending  *models.CharacterSheet
	gen      uint64
	status   Status
	onResult func(Status)

	// timers counts scheduled callbacks that have neither been stopped nor
	// returned. idle is signalled on o.mu when it drops to zero.
	timers int
	idle   *sync.Cond
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithTimeout bounds each save made from a timer.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithRecorder sets where the last sync time is kept.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithEnabled sets the predicate consulted on every change.
func WithEnabled(fn func() bool) Option {
	return func(o *Orchestrator) { o.enabled = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an orchestrator writing through saver.
func New(saver Saver, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		saver:   saver,
		enabled: func() bool { return true },
		delay:   DefaultDelay,
		timeout: 15 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.idle = sync.NewCond(&o.mu)

	o.status = Status{State: StateIdle, Message: MsgNotSynced}
	if o.recorder != nil {
		if at, ok := o.recorder.LastSync(); ok {
			o.status.LastSync = at
			o.status.Message = syncedMessage(at)
		}
	}
	return o
}

// OnResult registers fn to receive every status change. Pass nil to clear.
func (o *Orchestrator) OnResult(fn func(Status)) {
	o.mu.Lock()
	o.onResult = fn
	o.mu.Unlock()
}

// Delay returns the debounce window.
func (o *Orchestrator) Delay() time.Duration { return o.delay }

// Status returns the current status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Changed schedules a save of sheet after the debounce window, replacing any
// save already scheduled. It does nothing while sync is disabled.
func (o *Orchestrator) Changed(sheet *models.CharacterSheet) {
	if sheet == nil || !o.enabled() {
		return
	}

	o.mu.Lock()
	o.stopTimerLocked()
	o.gen++
	gen := o.gen
	o.pending = sheet.Clone()
	o.timers++
	o.timer = time.AfterFunc(o.delay, func() {
		defer o.timerDone()
		o.fire(gen)
	})
	o.status.State = StatePending
	o.status.Message = MsgPending
	o.status.Error = ""
	st := o.status
	fn := o.onResult
	o.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

// SyncNow saves sheet immediately and drops any scheduled save. It runs even
// when automatic sync is disabled.
func (o *Orchestrator) SyncNow(ctx context.Context, sheet *models.CharacterSheet) Status {
	o.mu.Lock()
	o.stopTimerLocked()
	o.gen++
	o.pending = nil
	o.mu.Unlock()

	return o.run(ctx, sheet)
}

// Flush runs a scheduled save now and waits for any timer-driven save that
// is already running.
func (o *Orchestrator) Flush(ctx context.Context) Status {
	o.mu.Lock()
	var sheet *models.CharacterSheet
	if o.stopTimerLocked() {
		sheet = o.pending
		o.pending = nil
		o.gen++
	}
	o.mu.Unlock()

	if sheet != nil {
		o.run(ctx, sheet)
	}
	o.wait()
	return o.Status()
}

// Cancel drops any scheduled save without running it. A save that is
// already running is not interrupted.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	o.stopTimerLocked()
	o.gen++
	o.pending = nil
	if o.status.State != StatePending {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.publish(func(st *Status) {
		st.State = StateIdle
		st.Message = MsgNotSynced
		if !st.LastSync.IsZero() {
			st.Message = syncedMessage(st.LastSync)
		}
	})
}

// Stop cancels any scheduled save and waits for a running one to finish.
func (o *Orchestrator) Stop() {
	o.Cancel()
	o.wait()
}

// Pending reports whether a save is scheduled.
func (o *Orchestrator) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending != nil
}

// stopTimerLocked clears the scheduled timer and reports whether it was
// stopped before its callback started.
func (o *Orchestrator) stopTimerLocked() bool {
	stopped := o.timer != nil && o.timer.Stop()
	o.timer = nil
	if stopped {
		o.timers--
		o.signalLocked()
	}
	return stopped
}

func (o *Orchestrator) timerDone() {
	o.mu.Lock()
	o.timers--
	o.signalLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) signalLocked() {
	if o.timers == 0 {
		o.idle.Broadcast()
	}
}

// wait blocks until no timer callback is scheduled or running.
func (o *Orchestrator) wait() {
	o.mu.Lock()
	for o.timers > 0 {
		o.idle.Wait()
	}
	o.mu.Unlock()
}

func (o *Orchestrator) fire(gen uint64) {
	o.mu.Lock()
	if gen != o.gen || o.pending == nil {
		o.mu.Unlock()
		return
	}
	sheet := o.pending
	o.pending = nil
	o.timer = nil
	o.mu.Unlock()

	if !o.enabled() {
		o.logger.Debug("cloudsync: disabled before save", slog.String("id", sheet.ID))
		o.publish(func(st *Status) {
			if st.State == StatePending {
				st.State = StateIdle
				st.Message = MsgNotSynced
			}
		})
		return
	}

	ctx := context.Background()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	o.run(ctx, sheet)
}

func (o *Orchestrator) run(ctx context.Context, sheet *models.CharacterSheet) Status {
	o.publish(func(st *Status) {
		st.State = StateSyncing
		st.Message = MsgSyncing
		st.Error = ""
		st.Conflict = nil
	})

	res, err := o.saver.Save(ctx, sheet, remote.SaveOptions{})
	switch {
	case err != nil:
		o.logger.Warn("cloudsync: save failed",
			slog.String("id", sheet.ID),
			slog.String("error", err.Error()),
		)
		msg := err.Error()
		if msg == "" {
			msg = ErrTextDefault
		}
		return o.publish(func(st *Status) {
			st.State = StateFailed
			st.Message = MsgSyncFailed
			st.Error = msg
		})

	case res.IsConflict():
		o.logger.Info("cloudsync: conflict", slog.String("id", sheet.ID))
		return o.publish(func(st *Status) {
			st.State = StateConflict
			st.Message = MsgConflict
			st.Error = ErrTextConflict
			st.Conflict = res.Conflict
		})

	default:
		at := models.Now()
		if o.recorder != nil {
			o.recorder.SetLastSync(at)
		}
		o.logger.Debug("cloudsync: synced", slog.String("id", sheet.ID))
		return o.publish(func(st *Status) {
			st.State = StateSynced
			st.Message = syncedMessage(at)
			st.Error = ""
			st.LastSync = at
		})
	}
}

// publish applies mutate under the lock and notifies the callback outside it.
func (o *Orchestrator) publish(mutate func(*Status)) Status {
	o.mu.Lock()
	mutate(&o.status)
	st := o.status
	fn := o.onResult
	o.mu.Unlock()

	if fn != nil {
		fn(st)
	}
	return st
}

func syncedMessage(at time.Time) string {
	return "synced " + at.Local().Format("15:04:05")
}
