package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/starford/charforge/internal/cloudsync"
	"github.com/starford/charforge/internal/draft"
	"github.com/starford/charforge/internal/kv"
	"github.com/starford/charforge/internal/logging"
	"github.com/starford/charforge/internal/provider"
	"github.com/starford/charforge/internal/remote"
	"github.com/starford/charforge/internal/rules"
	"github.com/starford/charforge/internal/watch"
	"github.com/starford/charforge/internal/wizard"
)

// Session is one CLI invocation of the wizard: the persisted draft, the
// remote client and the sync orchestrator wired into a controller.
type Session struct {
	Controller *wizard.Controller
	Remote     *remote.Client
	Settings   *draft.Settings
	Sync       *cloudsync.Orchestrator
	Logger     *slog.Logger

	logCloser io.Closer
}

// OpenSession restores the wizard from cfg.Client.StateDir. When logger is
// nil the session logs to the rotating file under the state dir.
func OpenSession(cfg *Config, logger *slog.Logger) (*Session, error) {
	cc := cfg.Client

	var closer io.Closer
	if logger == nil {
		l, c, err := logging.NewFile(cc.LogPath(), cfg.App.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		logger, closer = l, c
	}

	slots, err := kv.Open(cc.StateDir)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("session: open state: %w", err)
	}

	drafts := draft.NewStore(slots, logger)
	settings := draft.NewSettings(slots, logger)

	hc := &http.Client{Timeout: cc.Timeout}
	client := remote.New(cc.APIBase,
		remote.WithHTTPClient(hc),
		remote.WithCredentials(settings),
		remote.WithBaselines(settings),
		remote.WithLogger(logger),
	)

	orch := cloudsync.New(client,
		cloudsync.WithDelay(cc.SyncDelay),
		cloudsync.WithTimeout(cc.Timeout),
		cloudsync.WithRecorder(settings),
		cloudsync.WithEnabled(settings.CloudEnabled),
		cloudsync.WithLogger(logger),
	)

	registry, err := provider.NewRegistry(
		provider.NewDraft(drafts),
		provider.NewCloud(client, logger),
		provider.NewExport(cc.ExportDir, logger),
	)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, fmt.Errorf("session: %w", err)
	}

	deps := wizard.Deps{
		Drafts:   drafts,
		Settings: settings,
		Registry: registry,
		Sync:     orch,
		Logger:   logger,
	}
	if cc.RulesBase != "" {
		deps.Rules = rules.NewClient(cc.RulesBase, hc, logger)
	}

	return &Session{
		Controller: wizard.New(deps),
		Remote:     client,
		Settings:   settings,
		Sync:       orch,
		Logger:     logger,
		logCloser:  closer,
	}, nil
}

// Close runs any scheduled sync and releases the log file.
func (s *Session) Close(ctx context.Context) error {
	st := s.Sync.Flush(ctx)
	if st.State == cloudsync.StateFailed || st.State == cloudsync.StateConflict {
		s.Logger.Warn("session: final sync", slog.String("state", string(st.State)), slog.String("error", st.Error))
	}
	if s.logCloser != nil {
		return s.logCloser.Close()
	}
	return nil
}

// WatchFile imports every content change of path into the wizard until a
// shutdown signal or ctx cancellation. Each import schedules a debounced
// sync.
func (s *Session) WatchFile(ctx context.Context, path string, out io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	wctx, cancel := context.WithCancel(gCtx)

	w := watch.New(path, func(data []byte) {
		if !s.Controller.Import(bytes.NewReader(data)) {
			fmt.Fprintln(out, wizard.MsgImportFailed)
			return
		}
		v := s.Controller.View()
		fmt.Fprintf(out, "imported %s (%s)\n", v.Sheet.Name, v.CloudStatus)
	}, watch.WithLogger(s.Logger))

	g.Go(func() error {
		return w.Run(wctx)
	})
	g.Go(func() error {
		defer cancel()
		waitForShutdown(wctx, s.Logger)
		return nil
	})
	return g.Wait()
}
