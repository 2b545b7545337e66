package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/routeflow/internal/presentation/tui"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Status colours, from the banner palette.
const (
	colorDone    = "#22c55e"
	colorFailed  = "#ef4444"
	colorAction  = "#f59e0b"
	colorPending = "#818cf8"
	colorMuted   = "#9ca3af"
)

// newOutput returns a termenv output for w. Colours are only used when
// stdout is a terminal.
func newOutput(w io.Writer, noColor bool) *termenv.Output {
	profile := termenv.Ascii
	if !noColor && term.IsTerminal(int(os.Stdout.Fd())) {
		profile = termenv.ColorProfile()
	}
	return termenv.NewOutput(w, termenv.WithProfile(profile))
}

// statusPrinter renders a route's progress for humans.
type statusPrinter struct {
	out    *termenv.Output
	chains ports.ChainRegistry
	// transfers is optional; when set, unfinished bridge transfers are
	// checked against the status service.
	transfers ports.StatusService
}

func (p *statusPrinter) color(status string) termenv.Color {
	switch status {
	case string(domain.ExecutionDone):
		return p.out.Color(colorDone)
	case string(domain.ExecutionFailed), string(domain.ProcessCancelled):
		return p.out.Color(colorFailed)
	case string(domain.ExecutionActionRequired):
		return p.out.Color(colorAction)
	case "":
		return p.out.Color(colorMuted)
	default:
		return p.out.Color(colorPending)
	}
}

func (p *statusPrinter) status(status string) termenv.Style {
	if status == "" {
		return p.out.String("NOT_STARTED").Foreground(p.color(""))
	}
	return p.out.String(status).Foreground(p.color(status)).Bold()
}

func (p *statusPrinter) chainName(ctx context.Context, id uint64) string {
	if p.chains != nil {
		if c, err := p.chains.ChainByID(ctx, id); err == nil {
			return c.Name
		}
	}
	return fmt.Sprintf("chain %d", id)
}

func (p *statusPrinter) txLink(ctx context.Context, proc *domain.Process) string {
	if proc.TxLink != "" || proc.TxHash == "" || p.chains == nil {
		return proc.TxLink
	}
	c, err := p.chains.ChainByID(ctx, proc.ChainID)
	if err != nil {
		return ""
	}
	return c.TxLink(proc.TxHash)
}

// Print writes the route summary followed by one block per step.
func (p *statusPrinter) Print(ctx context.Context, route *domain.Route) error {
	fmt.Fprintf(p.out, "%s  %s  %s -> %s\n",
		p.out.String(route.ID).Bold(),
		p.status(string(route.Status())),
		p.chainName(ctx, route.FromChainID),
		p.chainName(ctx, route.ToChainID),
	)

	for i, step := range route.Steps {
		var status domain.ExecutionStatus
		if step.Execution != nil {
			status = step.Execution.Status
		}
		fmt.Fprintf(p.out, "  [%d] %s via %s  %s\n", i+1, step.Type, tui.Sanitize(step.Tool), p.status(string(status)))
		if step.Execution == nil {
			continue
		}
		if step.Execution.ToAmount != "" {
			fmt.Fprintf(p.out, "      received %s %s\n", step.Execution.ToAmount, receivedSymbol(step))
		}
		for _, proc := range step.Execution.Process {
			p.printProcess(ctx, proc)
		}
		if p.transfers != nil && status != domain.ExecutionDone && status != domain.ExecutionFailed {
			if err := p.checkTransfer(ctx, step); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *statusPrinter) printProcess(ctx context.Context, proc *domain.Process) {
	fmt.Fprintf(p.out, "      %-16s %s", proc.Type, p.status(string(proc.Status)))
	if proc.Message != "" {
		fmt.Fprintf(p.out, "  %s", tui.Sanitize(proc.Message))
	}
	fmt.Fprintln(p.out)
	if link := p.txLink(ctx, proc); link != "" {
		fmt.Fprintf(p.out, "      %s\n", p.out.String(link).Foreground(p.out.Color(colorMuted)))
	} else if proc.TxHash != "" {
		fmt.Fprintf(p.out, "      tx %s\n", proc.TxHash)
	}
	if proc.Error != nil {
		fmt.Fprintf(p.out, "      %s\n", p.out.String(tui.Sanitize(proc.Error.Message)).Foreground(p.out.Color(colorFailed)))
	}
}

// checkTransfer asks the status service about a submitted bridge transfer.
func (p *statusPrinter) checkTransfer(ctx context.Context, step *domain.Step) error {
	proc := step.Execution.FindProcess(domain.ProcessCrossChain)
	if proc == nil || proc.TxHash == "" {
		return nil
	}
	st, err := p.transfers.GetStatus(ctx, ports.StatusRequest{
		TxHash:    proc.TxHash,
		Bridge:    step.Tool,
		FromChain: step.Action.FromChainID,
		ToChain:   step.Action.ToChainID,
	})
	if err != nil {
		return fmt.Errorf("check transfer of step %s: %w", step.ID, err)
	}
	fmt.Fprintf(p.out, "      destination      %s", p.status(tui.Sanitize(st.Status)))
	if st.SubstatusMessage != "" {
		fmt.Fprintf(p.out, "  %s", tui.Sanitize(st.SubstatusMessage))
	}
	fmt.Fprintln(p.out)
	if st.Receiving != nil && st.Receiving.TxLink != "" {
		fmt.Fprintf(p.out, "      %s\n", p.out.String(st.Receiving.TxLink).Foreground(p.out.Color(colorMuted)))
	}
	return nil
}

func receivedSymbol(step *domain.Step) string {
	if step.Execution.ToToken != nil && step.Execution.ToToken.Symbol != "" {
		return step.Execution.ToToken.Symbol
	}
	return step.Action.ToToken.Symbol
}
