// lapserecd is the timelapse recording daemon. It owns the recording
// session lifecycle, tracks input activity while recording, and exposes
// a control socket for lapserecctl.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lapserec/internal/capture"
	"lapserec/internal/clipboard"
	"lapserec/internal/config"
	"lapserec/internal/frames"
	"lapserec/internal/hook"
	"lapserec/internal/ipc"
	"lapserec/internal/logging"
	"lapserec/internal/session"
	"lapserec/internal/store"
	"lapserec/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "config file (TOML or YAML); defaults to the user config directory")
	simulate := flag.Bool("simulate", false, "use the simulated capture engine instead of ffmpeg")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, *simulate, logger); err != nil {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, simulate bool, logger *slog.Logger) error {
	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	frameInterval := time.Duration(cfg.Recording.FrameIntervalSec) * time.Second
	var engine session.CaptureEngine
	if simulate {
		logger.Info("using simulated capture engine")
		engine = capture.NewSimulated(frameInterval)
	} else {
		engine = capture.NewFFmpeg(capture.Config{FrameInterval: frameInterval},
			logging.Component(logger, "capture"))
	}

	inputHook := hook.New()
	if ok, detail := inputHook.Available(); !ok {
		logger.Warn("input hook unavailable, sessions will lack activity data", "detail", detail)
	}

	var pasteSource session.PasteSource
	if cfg.Clipboard.Enabled {
		pasteSource = clipboard.New(time.Duration(cfg.Clipboard.PollIntervalMs) * time.Millisecond)
	}

	mgr := session.NewManager(session.Config{
		SessionRoot:       cfg.Recording.SessionRoot,
		HeartbeatInterval: time.Duration(cfg.Recording.HeartbeatIntervalSec) * time.Second,
		StopTimeout:       time.Duration(cfg.Recording.StopTimeoutSec) * time.Second,
		Tracker:           cfg.TrackerParams(),
		Verify:            cfg.VerifyParams(),
	}, session.Deps{
		Capture:   engine,
		Hook:      inputHook,
		Clipboard: pasteSource,
		Settings:  st,
		Validator: frames.NewValidator(),
		Archive:   st,
		Observer:  logObserver{logging.Component(logger, "session")},
	}, logging.Component(logger, "session"))

	if rs := mgr.GetRecoverableSession(); rs != nil {
		logger.Warn("interrupted session found",
			"folder", rs.SessionFolder,
			"started", rs.StartTime.Format(time.RFC3339),
			"last_heartbeat", rs.LastHeartbeat.Format(time.RFC3339),
			"frames", rs.FrameCount)
		logger.Warn("run 'lapserecctl recover' to finalize it or 'lapserecctl discard' to drop it")
	}

	srv := ipc.NewServer(cfg.IPC.SocketPath, dispatch(mgr, st), logging.Component(logger, "ipc"))
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	if mgr.Status().State != session.StateIdle {
		res := mgr.Stop()
		if res.Success {
			logger.Info("session finalized on shutdown", "session_id", res.SessionID, "frames", res.TotalFrames)
		} else {
			logger.Warn("session stop on shutdown failed", "error", res.Error)
			mgr.EmergencyStop()
		}
	}
	return nil
}

// dispatch maps control requests onto the session manager and store.
func dispatch(mgr *session.Manager, st *store.Store) ipc.Handler {
	return func(req ipc.Request) ipc.Response {
		switch req.Op {
		case ipc.OpStart:
			res := mgr.Start(req.SourceID)
			return respond(res, res.Success, res.Error)
		case ipc.OpPause:
			res := mgr.Pause()
			return respond(res, res.Success, res.Error)
		case ipc.OpResume:
			res := mgr.Resume(req.SourceID)
			return respond(res, res.Success, res.Error)
		case ipc.OpStop:
			res := mgr.Stop()
			return respond(res, res.Success, res.Error)
		case ipc.OpEmergencyStop:
			res := mgr.EmergencyStop()
			return respond(res, res.Success, res.Error)
		case ipc.OpStatus:
			return ipc.Result(mgr.Status())
		case ipc.OpRecoverable:
			return ipc.Result(mgr.GetRecoverableSession())
		case ipc.OpRecover:
			res := mgr.Recover(req.SessionFolder)
			return respond(res, res.Success, res.Error)
		case ipc.OpDiscard:
			if err := mgr.DiscardRecovery(); err != nil {
				return ipc.Errorf("discard recovery: %v", err)
			}
			return ipc.Result(map[string]bool{"discarded": true})
		case ipc.OpSessions:
			recs, err := st.ListSessions(req.Limit)
			if err != nil {
				return ipc.Errorf("list sessions: %v", err)
			}
			return ipc.Result(recs)
		default:
			return ipc.Errorf("unknown operation %q", req.Op)
		}
	}
}

// respond keeps the operation result as the payload even on failure so
// clients can show partial data.
func respond(payload any, success bool, errMsg string) ipc.Response {
	resp := ipc.Result(payload)
	if !resp.OK {
		return resp
	}
	resp.OK = success
	resp.Error = errMsg
	return resp
}

// logObserver writes lifecycle transitions and throttled activity
// updates to the daemon log.
type logObserver struct {
	logger *slog.Logger
}

func (o logObserver) OnStateChanged(st session.Status) {
	o.logger.Info("state changed", "state", st.State.String(), "session_id", st.SessionID)
}

func (o logObserver) OnActivityUpdate(stats tracker.Stats) {
	o.logger.Debug("activity update",
		"keystrokes", stats.EstimatedKeystrokes,
		"average_wpm", stats.AverageWPM,
		"bursts", stats.TypingBurstCount)
}
