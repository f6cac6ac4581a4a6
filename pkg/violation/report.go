package violation

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/safeshell/safeshell/pkg/api"
	"github.com/safeshell/safeshell/pkg/logging"
)

// Reporter renders generic (non-violation) failures. Every error gets a
// short console line; only genuine engine faults are persisted to the
// structured log, so a piped command's own nonzero exit does not pollute
// the error log.
type Reporter struct {
	emitter *logging.Emitter
	out     io.Writer
}

func NewReporter(emitter *logging.Emitter, out io.Writer) *Reporter {
	return &Reporter{emitter: emitter, out: out}
}

// Report prints the short form and, for engine faults, persists the
// fuller payload. input is the script as the caller supplied it;
// expanded is the transpiled form when available.
func (r *Reporter) Report(err error, input, expanded string) {
	fmt.Fprintf(r.out, "safeshell: %s\n", shortMessage(err))

	if r.emitter == nil || !IsEngineFault(err) {
		return
	}
	_ = r.emitter.Emit(logging.EventEngineError, shortMessage(err), nil,
		&logging.EngineErrorData{
			Error:    err.Error(),
			Input:    input,
			Expanded: expanded,
		})
}

// IsEngineFault reports whether an error is an engine problem worth
// persisting, as opposed to an external command's own failure surfacing
// through the pipeline.
func IsEngineFault(err error) bool {
	if errors.Is(err, api.ErrPipelineFailure) {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "exited with code") || strings.Contains(msg, "Pipeline failed") {
		return false
	}
	return true
}

// shortMessage keeps the console line to the first line of the error.
func shortMessage(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
