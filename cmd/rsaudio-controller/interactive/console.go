// Package interactive provides the operator console for rsaudio-controller.
package interactive

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/rslogger/rsaudio/pkg/controller"
	"github.com/rslogger/rsaudio/pkg/wire"
)

// Fleet is the controller surface the console drives.
type Fleet interface {
	ModuleStatus() map[string]controller.ModuleStatus
	StartAll(ctx context.Context, opts controller.StartOptions) controller.BroadcastResult
	StopAll(ctx context.Context) controller.BroadcastResult
	Start(ctx context.Context, id string, opts controller.StartOptions) controller.Outcome
	Stop(ctx context.Context, id string) controller.Outcome
	Status(ctx context.Context, id string) controller.Outcome
	Configure(ctx context.Context, id string, override *wire.ConfigOverride, save bool) controller.Outcome
	Shutdown(ctx context.Context, id string) controller.Outcome
}

var _ Fleet = (*controller.Controller)(nil)

// Console handles interactive mode for rsaudio-controller.
type Console struct {
	fleet Fleet
	rl    *readline.Instance
	out   io.Writer
	now   func() time.Time
}

// New creates a console reading from the terminal.
func New(fleet Fleet) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rsaudio> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(fleet, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(fleet Fleet, out io.Writer) *Console {
	return &Console{fleet: fleet, out: out, now: time.Now}
}

// Stdout returns a writer that coordinates with the prompt. Route log
// output through it while the console runs.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// OnEvent prints controller events above the prompt.
func (c *Console) OnEvent(ev controller.Event) {
	switch ev.Kind {
	case controller.EventModuleError:
		fmt.Fprintf(c.out, "\n[%s] %s: %s\n", ev.Kind, ev.ModuleID, ev.Error)
	case controller.EventRecordingComplete:
		fmt.Fprintf(c.out, "\n[%s] %s: %s (%.1fs)\n", ev.Kind, ev.ModuleID,
			ev.Recording.Filename, ev.Recording.Duration.Seconds())
	default:
		fmt.Fprintf(c.out, "\n[%s] %s\n", ev.Kind, ev.ModuleID)
	}
}

// Run starts the command loop. It calls cancel when the operator quits.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if !c.Execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line. It returns false when the operator asked
// to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()

	case "modules", "ls":
		c.cmdModules()

	case "start-all", "sa":
		c.cmdStartAll(ctx, args)

	case "stop-all", "xa":
		c.printBroadcast("stop", c.fleet.StopAll(ctx))

	case "start":
		c.cmdStart(ctx, args)

	case "stop":
		c.withModule(args, "stop <module-id>", func(id string) {
			c.printOutcome(c.fleet.Stop(ctx, id))
		})

	case "status", "st":
		c.withModule(args, "status <module-id>", func(id string) {
			c.printOutcome(c.fleet.Status(ctx, id))
		})

	case "config", "cfg":
		c.cmdConfig(ctx, args)

	case "shutdown":
		c.withModule(args, "shutdown <module-id>", func(id string) {
			c.printOutcome(c.fleet.Shutdown(ctx, id))
		})

	case "quit", "exit", "q":
		return false

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
rsaudio Controller Commands:
  Fleet:
    modules                  - List known modules
    start-all [dur] [id]     - Start recording on every live module
    stop-all                 - Stop recording on every live module

  Module:
    start <module> [dur]     - Start recording on one module
    stop <module>            - Stop recording on one module
    status <module>          - Ask a module for its current state
    config <module> k=v [save]
                             - Change capture settings (samplerate, channels,
                               device, dtype, recording_dir)
    shutdown <module>        - Stop a module process

  General:
    help                     - Show this help
    quit                     - Exit controller

  Durations are seconds (30) or Go durations (90s, 5m).`)
}

func (c *Console) withModule(args []string, usage string, fn func(id string)) {
	if len(args) != 1 {
		fmt.Fprintf(c.out, "Usage: %s\n", usage)
		return
	}
	fn(args[0])
}

func (c *Console) cmdModules() {
	modules := c.fleet.ModuleStatus()
	if len(modules) == 0 {
		fmt.Fprintln(c.out, "No modules seen yet.")
		return
	}

	ids := make([]string, 0, len(modules))
	for id := range modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	now := c.now()
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODULE\tSTATE\tRECORDING\tCONFIG\tLAST SEEN")
	for _, id := range ids {
		m := modules[id]
		cfg := "-"
		if m.Config != nil {
			cfg = fmt.Sprintf("%dHz/%dch/%s v%d", m.Config.SampleRate, m.Config.Channels, m.Config.DType, m.Config.Version)
		}
		rec := m.RecordingID
		if rec == "" {
			rec = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s ago\n", id, m.State, rec, cfg,
			now.Sub(m.LastHeartbeat).Truncate(time.Second))
	}
	tw.Flush()
}

func (c *Console) cmdStartAll(ctx context.Context, args []string) {
	var opts controller.StartOptions
	if len(args) > 0 {
		d, err := parseDuration(args[0])
		if err != nil {
			fmt.Fprintf(c.out, "Invalid duration: %v\n", err)
			return
		}
		opts.Duration = d
	}
	if len(args) > 1 {
		opts.RecordingID = args[1]
	}
	c.printBroadcast("start", c.fleet.StartAll(ctx, opts))
}

func (c *Console) cmdStart(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(c.out, "Usage: start <module-id> [duration]")
		return
	}
	var opts controller.StartOptions
	if len(args) == 2 {
		d, err := parseDuration(args[1])
		if err != nil {
			fmt.Fprintf(c.out, "Invalid duration: %v\n", err)
			return
		}
		opts.Duration = d
	}
	c.printOutcome(c.fleet.Start(ctx, args[0], opts))
}

func (c *Console) cmdConfig(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: config <module-id> key=value... [save]")
		return
	}
	id, pairs := args[0], args[1:]
	save := false
	if last := pairs[len(pairs)-1]; strings.EqualFold(last, "save") {
		save = true
		pairs = pairs[:len(pairs)-1]
	}
	override, err := wire.ParseOverride(pairs)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid config: %v\n", err)
		return
	}
	c.printOutcome(c.fleet.Configure(ctx, id, override, save))
}

func (c *Console) printOutcome(o controller.Outcome) {
	switch o.Kind {
	case controller.OutcomeOK:
		fmt.Fprintf(c.out, "%s: ok", o.ModuleID)
		if o.Message != "" {
			fmt.Fprintf(c.out, " (%s)", o.Message)
		}
		if r := o.Result; r != nil {
			if r.State != "" {
				fmt.Fprintf(c.out, " state=%s", r.State)
			}
			if r.RecordingID != "" {
				fmt.Fprintf(c.out, " recording=%s", r.RecordingID)
			}
			if r.FilePath != "" {
				fmt.Fprintf(c.out, " file=%s", r.FilePath)
			}
		}
		fmt.Fprintf(c.out, " [%s]\n", o.Latency.Round(time.Millisecond))
	case controller.OutcomeTimeout:
		fmt.Fprintf(c.out, "%s: timeout\n", o.ModuleID)
	default:
		fmt.Fprintf(c.out, "%s: error: %s\n", o.ModuleID, o.Error)
	}
}

func (c *Console) printBroadcast(verb string, res controller.BroadcastResult) {
	if len(res) == 0 {
		fmt.Fprintln(c.out, "No live modules.")
		return
	}
	ids := make([]string, 0, len(res))
	for id := range res {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		c.printOutcome(res[id])
	}
	fmt.Fprintf(c.out, "%s: %d ok, %d error, %d timeout\n", verb,
		len(res.Modules(controller.OutcomeOK)),
		len(res.Modules(controller.OutcomeError)),
		len(res.Modules(controller.OutcomeTimeout)))
}

// parseDuration accepts plain seconds or a Go duration string.
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("must be positive, got %s", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
