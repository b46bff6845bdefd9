// Rehabctl is the command-line client for monitoring and controlling a
// running rehabd instance. It connects over HTTP and WebSocket to query
// status, switch exercises and stream live rep scores from the daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/large-farva/rehab-engine/internal/ctl"
)

func main() {
	var (
		host    = pflag.StringP("host", "H", "http://127.0.0.1:8080", "Rehab daemon URL (e.g. http://192.168.8.1:8080)")
		jsonOut = pflag.Bool("json", false, "Output raw JSON instead of formatted text")
		filter  = pflag.StringSlice("filter", nil, "Event types to show in watch (e.g. --filter rep_scored,log)")
	)

	// Stop parsing global flags at the first non-flag argument (the command
	// name), so subcommand-specific flags like --last are not rejected.
	pflag.CommandLine.SetInterspersed(false)
	pflag.Parse()

	if pflag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cmd := pflag.Arg(0)
	subArgs := pflag.Args()[1:]

	var err error
	switch cmd {
	// ── Query commands ────────────────────────────────────────────
	case "status":
		err = ctl.Status(*host, *jsonOut)

	case "health":
		err = ctl.Health(*host, *jsonOut)

	case "version":
		err = ctl.VersionInfo(*host, *jsonOut)

	case "exercises":
		err = ctl.Exercises(*host, *jsonOut)

	case "reps":
		opts := ctl.RepsOptions{JSON: *jsonOut}
		repFlags := pflag.NewFlagSet("reps", pflag.ContinueOnError)
		repFlags.IntVar(&opts.Last, "last", 0, "Only show the last N reps")
		_ = repFlags.Parse(subArgs)
		err = ctl.Reps(*host, opts)

	case "stats":
		err = ctl.Stats(*host, *jsonOut)

	case "config":
		err = ctl.Config(*host, *jsonOut)

	case "logs":
		opts := ctl.LogsOptions{JSON: *jsonOut}
		logFlags := pflag.NewFlagSet("logs", pflag.ContinueOnError)
		logFlags.StringVar(&opts.Level, "level", "", "Filter by log level (info, error, warn)")
		logFlags.IntVar(&opts.Limit, "limit", 0, "Limit number of log entries shown")
		logFlags.BoolVar(&opts.Tail, "tail", false, "Stream live log events (like watch --filter log)")
		_ = logFlags.Parse(subArgs)
		err = ctl.Logs(*host, opts)

	// ── Control commands ──────────────────────────────────────────
	case "select":
		opts := ctl.SelectOptions{JSON: *jsonOut}
		if len(subArgs) > 0 {
			opts.Exercise = subArgs[0]
		}
		err = ctl.Select(*host, opts)

	case "reset":
		err = ctl.Reset(*host, *jsonOut)

	case "reload":
		err = ctl.Reload(*host, *jsonOut)

	// ── Live streaming ────────────────────────────────────────────
	case "watch":
		err = ctl.Watch(*host, ctl.WatchOptions{
			Filter: *filter,
			JSON:   *jsonOut,
		})

	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Print(`
  rehabctl: Rehab Engine control CLI

  USAGE
    rehabctl [flags] <command> [command-flags]

  COMMANDS (query)
    status          Show daemon state, session, and the latest rep score
    health          Check daemon and component health
    version         Show CLI and daemon version information
    exercises       List exercises and their thresholds
    reps            List reps completed in the current session
    stats           Show frame loop counters
    config          Show the daemon's running configuration
    logs            Show recent daemon log messages

  COMMANDS (control)
    select NAME     Switch exercise and start a new session
    reset           Clear the rep history and start a new session
    reload          Reload configuration from disk

  COMMANDS (live)
    watch           Stream live events from the daemon (Ctrl-C to stop)

  GLOBAL FLAGS
    -H, --host URL      Daemon base URL (default: http://127.0.0.1:8080)
        --json          Output raw JSON instead of formatted text
        --filter TYPE   Event types to show in watch (comma-separated)

  COMMAND FLAGS
    reps:
        --last N            Only show the last N reps

    logs:
        --level LEVEL       Filter by log level (info, error, warn)
        --limit N           Limit number of log entries shown
        --tail              Stream live log events

  EXAMPLES
    rehabctl status
    rehabctl --json status
    rehabctl --host http://192.168.8.1:8080 watch
    rehabctl exercises
    rehabctl select knee_extension
    rehabctl select "Sit to Stand"
    rehabctl reps --last 5
    rehabctl reset
    rehabctl logs --level warn --limit 20
    rehabctl logs --tail
    rehabctl reload
    rehabctl watch --filter rep_scored,session_reset

`)
}
