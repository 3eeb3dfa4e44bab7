package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/avmdbg/avmdbg/common/logging"
	"github.com/avmdbg/avmdbg/internal/avm"
	"github.com/avmdbg/avmdbg/internal/replay"
	"github.com/avmdbg/avmdbg/internal/sourcemap"
	"github.com/avmdbg/avmdbg/internal/trace"
	"github.com/avmdbg/avmdbg/services/debugger"
)

var errReplayStalled = errors.New("replay made no progress")

type replayOptions struct {
	sources     string
	breakpoints []string
	noColor     bool
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <trace.json>",
		Short: "Replay a simulation trace without a client, printing the state at every breakpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}
	cmd.Flags().StringVar(&opts.sources, "sources", "", "program sources description file")
	cmd.Flags().StringArrayVarP(&opts.breakpoints, "break", "b", nil, "breakpoint as <source file>:<line>, may be repeated")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	return cmd
}

func parseBreakpoint(s string) (string, int, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("invalid breakpoint %q: expected <file>:<line>", s)
	}
	line, err := strconv.Atoi(s[i+1:])
	if err != nil || line <= 0 {
		return "", 0, fmt.Errorf("invalid breakpoint line in %q", s)
	}
	return s[:i], line, nil
}

func runReplay(ctx context.Context, out io.Writer, tracePath string, opts replayOptions) error {
	response, err := trace.LoadSimulateResponse(tracePath)
	if err != nil {
		return err
	}

	var sources []*sourcemap.ProgramSource
	if opts.sources != "" {
		loader, err := sourcemap.NewLoader(sourcemap.DefaultCacheSize)
		if err != nil {
			return err
		}
		if sources, err = sourcemap.LoadTxnGroupSources(opts.sources, loader); err != nil {
			return err
		}
	}

	logger := logging.NewLogger("replay")
	rt := debugger.NewRuntime(ctx, replay.NewEngine(response, replay.NewSourceRegistry(sources), logger), nil, logger)
	p := newPrinter(out, opts.noColor)
	for _, spec := range opts.breakpoints {
		path, line, err := parseBreakpoint(spec)
		if err != nil {
			return err
		}
		if bp := rt.SetBreakpoint(path, line); bp.Verified {
			p.validated(bp)
		}
	}

	rt.Start(false, true)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rt.RunPending()
		events := rt.TakeEvents()
		if len(events) == 0 {
			return errReplayStalled
		}
		for _, e := range events {
			switch e.Kind {
			case debugger.EventBreakpointValidated:
				p.validated(*e.Breakpoint)
			case debugger.EventStopOnBreakpoint:
				p.stop(rt, e.HitBreakpoints)
				if err := rt.Continue(false); err != nil {
					return err
				}
			case debugger.EventEnd:
				p.appStates(rt)
				return nil
			case debugger.EventError:
				return e.Err
			case debugger.EventStopOnEntry, debugger.EventStopOnStep:
				if err := rt.Continue(false); err != nil {
					return err
				}
			}
		}
	}
}

type printer struct {
	out   io.Writer
	title *color.Color
	key   *color.Color
	faint *color.Color
}

func newPrinter(out io.Writer, noColor bool) *printer {
	p := &printer{
		out:   out,
		title: color.New(color.FgCyan, color.Bold),
		key:   color.New(color.FgYellow),
		faint: color.New(color.Faint),
	}
	if noColor {
		p.title.DisableColor()
		p.key.DisableColor()
		p.faint.DisableColor()
	}
	return p
}

func (p *printer) validated(bp debugger.Breakpoint) {
	p.faint.Fprintf(p.out, "breakpoint %d verified at %s:%d\n", bp.ID, bp.Path, bp.Line)
}

func (p *printer) stop(rt *debugger.Runtime, hits []int) {
	top, ok := rt.Frame(0)
	if !ok {
		return
	}

	ids := make([]string, len(hits))
	for i, id := range hits {
		ids[i] = strconv.Itoa(id)
	}
	where := top.Name()
	if src := top.Source(); src != nil {
		where = fmt.Sprintf("%s (%s:%d)", where, src.Name, top.Location().Line)
	}
	p.title.Fprintf(p.out, "breakpoint %s hit in %s\n", strings.Join(ids, ", "), where)

	state, ok := top.ProgramState()
	if !ok {
		return
	}
	fmt.Fprintf(p.out, "  pc %d\n", state.PC)
	for i := len(state.Stack) - 1; i >= 0; i-- {
		p.key.Fprintf(p.out, "  stack[%d]", i)
		fmt.Fprintf(p.out, " %s\n", state.Stack[i])
	}
	for _, slot := range state.ScratchSlotsInUse() {
		p.key.Fprintf(p.out, "  scratch[%d]", slot)
		fmt.Fprintf(p.out, " %s\n", state.ScratchValue(slot))
	}
}

func (p *printer) appStates(rt *debugger.Runtime) {
	for _, id := range rt.AppIDs() {
		state := rt.AppState(id)
		p.title.Fprintf(p.out, "app %d\n", id)
		p.entries("global", state.Global)
		for _, account := range rt.Accounts(id) {
			local, _ := state.LocalState(account)
			p.entries("local "+account, local)
		}
		p.entries("box", state.Box)
	}
}

func (p *printer) entries(scope string, m *avm.ByteArrayMap) {
	if m.Len() == 0 {
		return
	}
	fmt.Fprintf(p.out, "  %s\n", scope)
	for _, e := range m.Entries() {
		p.key.Fprintf(p.out, "    %s", avm.NewBytes(e.Key))
		fmt.Fprintf(p.out, " = %s\n", e.Value)
	}
}
