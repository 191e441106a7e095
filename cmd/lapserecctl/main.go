// lapserecctl controls a running lapserecd over its unix socket and
// offers offline verification of finished session folders.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lapserec/internal/config"
	"lapserec/internal/frames"
	"lapserec/internal/ipc"
	"lapserec/internal/session"
	"lapserec/internal/store"
	"lapserec/internal/verify"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "start":
		cmdStart()
	case "pause":
		cmdSimple(ipc.OpPause)
	case "resume":
		cmdResume()
	case "stop":
		cmdStop()
	case "emergency-stop":
		cmdSimple(ipc.OpEmergencyStop)
	case "status":
		cmdStatus()
	case "sessions":
		cmdSessions()
	case "recover":
		cmdRecover()
	case "discard":
		cmdSimple(ipc.OpDiscard)
	case "verify":
		cmdVerify()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`lapserecctl - control the lapserec recording daemon

USAGE:
    lapserecctl <command> [options]

COMMANDS:
    start [-source id]   Start a recording session
    pause                Pause the current session
    resume [-source id]  Resume a paused session, optionally on a new source
    stop                 Stop, verify and archive the current session
    emergency-stop       Force teardown from any state, no verification
    status               Show daemon state and live session counters
    sessions [-n N]      List archived sessions
    recover [folder]     Finalize an interrupted session found on disk
    discard              Drop the crash-recovery snapshot
    verify <folder>      Verify a finished session folder offline
    help                 Show this help message

The daemon socket is read from the config file; override with the
LAPSEREC_SOCKET environment variable.`)
}

func client() *ipc.Client {
	path := os.Getenv("LAPSEREC_SOCKET")
	if path == "" {
		cfg, err := config.LoadOrDefault("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		path = cfg.IPC.SocketPath
	}
	return ipc.NewClient(path)
}

func do(req ipc.Request) ipc.Response {
	resp, err := client().Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Is lapserecd running?")
		os.Exit(1)
	}
	return resp
}

func cmdStart() {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	source := fs.String("source", "", "capture source (display or window id)")
	fs.Parse(os.Args[2:])

	resp := do(ipc.Request{Op: ipc.OpStart, SourceID: *source})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "Start failed: %s\n", resp.Error)
		os.Exit(1)
	}

	var res session.StartResult
	json.Unmarshal(resp.Payload, &res)
	fmt.Println("Recording started.")
	fmt.Printf("  Session ID: %s\n", res.SessionID)
	fmt.Printf("  Folder:     %s\n", res.SessionFolder)
}

func cmdResume() {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	source := fs.String("source", "", "switch to this capture source")
	fs.Parse(os.Args[2:])

	resp := do(ipc.Request{Op: ipc.OpResume, SourceID: *source})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "Resume failed: %s\n", resp.Error)
		os.Exit(1)
	}
	fmt.Println("Recording resumed.")
}

func cmdSimple(op string) {
	resp := do(ipc.Request{Op: op})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "%s failed: %s\n", op, resp.Error)
		os.Exit(1)
	}
	fmt.Printf("%s: done\n", op)
}

func cmdStop() {
	resp := do(ipc.Request{Op: ipc.OpStop})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "Stop failed: %s\n", resp.Error)
		os.Exit(1)
	}

	var res session.StopResult
	json.Unmarshal(resp.Payload, &res)
	fmt.Println("Recording stopped.")
	fmt.Printf("  Session ID: %s\n", res.SessionID)
	fmt.Printf("  Folder:     %s\n", res.SessionFolder)
	fmt.Printf("  Frames:     %d\n", res.TotalFrames)
	fmt.Printf("  Duration:   %s\n", res.Duration.Round(time.Second))
	if res.Verification != nil {
		printVerification(res.Verification)
	}
	if res.Error != "" {
		fmt.Printf("  Warnings:   %s\n", res.Error)
	}
}

func cmdStatus() {
	resp := do(ipc.Request{Op: ipc.OpStatus})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "Status failed: %s\n", resp.Error)
		os.Exit(1)
	}

	var st session.Status
	json.Unmarshal(resp.Payload, &st)
	fmt.Printf("State: %s\n", st.State)
	if st.State == session.StateIdle {
		return
	}
	fmt.Printf("  Session ID: %s\n", st.SessionID)
	fmt.Printf("  Source:     %s\n", st.SourceID)
	fmt.Printf("  Started:    %s\n", st.StartTime.Format(time.RFC3339))
	fmt.Printf("  Elapsed:    %s\n", time.Since(st.StartTime).Round(time.Second))
	fmt.Printf("  Frames:     %d\n", st.FrameCount)
	if st.DroppedFrames > 0 {
		fmt.Printf("  Dropped:    %d (queue %d, quality %d%%)\n", st.DroppedFrames, st.QueueSize, st.AdaptiveQuality)
	}
}

func cmdSessions() {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of sessions to list")
	fs.Parse(os.Args[2:])

	resp := do(ipc.Request{Op: ipc.OpSessions, Limit: *limit})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "List failed: %s\n", resp.Error)
		os.Exit(1)
	}

	var recs []*store.SessionRecord
	json.Unmarshal(resp.Payload, &recs)
	if len(recs) == 0 {
		fmt.Println("No archived sessions.")
		return
	}

	for _, rec := range recs {
		verdict := "UNVERIFIED"
		if rec.Verified {
			verdict = "verified"
		}
		fmt.Printf("%s  %s  %4d frames  %6s  score %3d  %s\n",
			rec.StartedAt.Format("2006-01-02 15:04"),
			rec.ID[:8],
			rec.FrameCount,
			rec.Duration.Round(time.Second),
			rec.Score,
			verdict)
	}
}

func cmdRecover() {
	folder := ""
	if len(os.Args) > 2 {
		folder = os.Args[2]
	}

	if folder == "" {
		resp := do(ipc.Request{Op: ipc.OpRecoverable})
		if !resp.OK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", resp.Error)
			os.Exit(1)
		}
		var rs *session.RecoverableSession
		json.Unmarshal(resp.Payload, &rs)
		if rs == nil {
			fmt.Println("No recoverable session.")
			return
		}
		folder = rs.SessionFolder
		fmt.Printf("Recovering interrupted session from %s\n", folder)
		fmt.Printf("  Started:        %s\n", rs.StartTime.Format(time.RFC3339))
		fmt.Printf("  Last heartbeat: %s\n", rs.LastHeartbeat.Format(time.RFC3339))
	}

	resp := do(ipc.Request{Op: ipc.OpRecover, SessionFolder: folder})
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "Recovery failed: %s\n", resp.Error)
		os.Exit(1)
	}

	var res session.RecoverResult
	json.Unmarshal(resp.Payload, &res)
	fmt.Println("Session recovered.")
	fmt.Printf("  Folder: %s\n", res.SessionFolder)
	fmt.Printf("  Frames: %d\n", res.TotalFrames)
}

// cmdVerify re-scores a finished session folder without the daemon:
// frames are re-validated from disk and the metrics document re-runs
// through the verification engine.
func cmdVerify() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: lapserecctl verify <session-folder>")
		os.Exit(1)
	}
	folder := os.Args[2]

	mf, err := session.LoadMetricsFile(filepath.Join(folder, "metrics.json"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading session metrics: %v\n", err)
		os.Exit(1)
	}

	res, err := frames.NewValidator().Validate(folder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error validating frames: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	total := time.Duration(mf.Input.SessionDuration) * time.Millisecond
	var idleTotal time.Duration
	for _, p := range mf.Activity.IdlePeriods {
		idleTotal += p.Duration
	}
	active := total - idleTotal
	if active < 0 {
		active = 0
	}

	out := verify.Calculate(verify.Input{
		TotalDuration:  total,
		ActiveDuration: active,
		FrameCount:     res.ValidFrameCount,
		PasteEvents:    mf.Input.Clipboard.Events,
		IdlePeriods:    mf.Activity.IdlePeriods,
	}, cfg.VerifyParams())

	fmt.Printf("Session: %s\n", mf.SessionID)
	fmt.Printf("  Recorded: %s to %s\n", mf.StartTime.Format(time.RFC3339), mf.EndTime.Format(time.RFC3339))
	fmt.Printf("  Frames on disk: %d\n", res.ValidFrameCount)
	printVerification(&out)

	if mf.Activity.Verification != nil && mf.Activity.Verification.Score != out.Score {
		fmt.Printf("  Note: archived score was %d\n", mf.Activity.Verification.Score)
	}
}

func printVerification(out *verify.Output) {
	fmt.Printf("  Score:      %d/100\n", out.Score)
	if out.IsVerified {
		fmt.Println("  Verdict:    VERIFIED human activity")
	} else {
		fmt.Println("  Verdict:    NOT verified")
	}
	fmt.Printf("  Factors:    paste %d, activity %d, consistency %d, duration %d\n",
		out.Factors.PasteScore, out.Factors.ActivityScore,
		out.Factors.ConsistencyScore, out.Factors.DurationScore)
	for _, flag := range out.Flags {
		fmt.Printf("  Flag:       %s\n", flag)
	}
}
