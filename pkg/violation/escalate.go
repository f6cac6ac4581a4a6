package violation

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/logging"
	"github.com/safeshell/safeshell/pkg/store"
)

// Driver turns detected violations into pending requests and prints the
// retry menus. A ledger write failure is downgraded to a warning: the
// menu is always shown.
type Driver struct {
	ledger  *store.Ledger
	emitter *logging.Emitter
	out     io.Writer
	logger  *slog.Logger
}

// NewDriver builds a driver. emitter may be nil to disable structured
// event logging; out receives the menus.
func NewDriver(ledger *store.Ledger, emitter *logging.Emitter, out io.Writer, logger *slog.Logger) *Driver {
	return &Driver{
		ledger:  ledger,
		emitter: emitter,
		out:     out,
		logger:  logger.With("component", "violation"),
	}
}

// EscalatePath records a pending path request for a detected violation
// and prints the path menu. It returns the pending id.
func (d *Driver) EscalatePath(det Detection, cwd, scriptHash string) string {
	req := &api.PendingPathRequest{
		Path:       det.Path,
		Operation:  det.Operation,
		Cwd:        cwd,
		ScriptHash: scriptHash,
	}
	id, err := d.ledger.CreatePath(req)
	if err != nil {
		// The prompt must still reach the user.
		id = req.ID
		d.logger.Warn("pending request not persisted", "error", err, "path", det.Path)
	}

	if d.emitter != nil {
		_ = d.emitter.Emit(logging.EventViolation,
			fmt.Sprintf("%s access to %s denied", det.Operation, det.Path),
			nil, &logging.ViolationData{
				Code:      det.Code,
				Path:      det.Path,
				Operation: string(det.Operation),
				PendingID: id,
			})
	}

	d.printPathMenu(req, id)
	return id
}

// EscalateCommands records a pending command request for one or more
// blocked commands and prints the command menu.
func (d *Driver) EscalateCommands(commands []string, cwd, scriptHash string, timeout time.Duration, background bool) string {
	req := &api.PendingCommand{
		ScriptHash: scriptHash,
		Commands:   commands,
		Cwd:        cwd,
		Background: background,
	}
	if timeout > 0 {
		req.TimeoutMS = timeout.Milliseconds()
	}
	id, err := d.ledger.CreateCommand(req)
	if err != nil {
		id = req.ID
		d.logger.Warn("pending request not persisted", "error", err, "commands", commands)
	}

	if d.emitter != nil {
		_ = d.emitter.Emit(logging.EventViolation,
			fmt.Sprintf("%d command(s) denied", len(commands)),
			nil, &logging.ViolationData{PendingID: id})
	}

	d.printCommandMenu(req, id)
	return id
}

func (d *Driver) printPathMenu(req *api.PendingPathRequest, id string) {
	header := color.New(color.FgYellow, color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(d.out)
	header.Fprintf(d.out, "Permission required: %s access to %s\n", req.Operation, req.Path)
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "  Grant for this file:")
	fmt.Fprintln(d.out, "    r1 / w1 / rw1    once")
	fmt.Fprintln(d.out, "    r2 / w2 / rw2    this session")
	fmt.Fprintln(d.out, "    r3 / w3 / rw3    always")
	fmt.Fprintln(d.out, "  Grant for its directory: add a d suffix (e.g. r1d, rw3d)")
	fmt.Fprintln(d.out, "    deny             refuse")
	fmt.Fprintln(d.out)
	dim.Fprintf(d.out, "  safeshell retry-path %s <choice>\n", id)
	fmt.Fprintln(d.out)
}

func (d *Driver) printCommandMenu(req *api.PendingCommand, id string) {
	header := color.New(color.FgYellow, color.Bold)
	dim := color.New(color.FgHiBlack)

	fmt.Fprintln(d.out)
	if len(req.Commands) == 1 {
		header.Fprintf(d.out, "Permission required: run %s\n", req.Commands[0])
	} else {
		header.Fprintf(d.out, "Permission required: run %d commands\n", len(req.Commands))
		for _, c := range req.Commands {
			fmt.Fprintf(d.out, "    %s\n", c)
		}
	}
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "    1    allow once")
	fmt.Fprintln(d.out, "    2    allow always")
	fmt.Fprintln(d.out, "    3    allow for this session")
	fmt.Fprintln(d.out, "    4    deny")
	fmt.Fprintln(d.out)
	dim.Fprintf(d.out, "  safeshell retry %s <choice>\n", id)
	fmt.Fprintln(d.out)
}
