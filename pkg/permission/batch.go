package permission

import (
	"errors"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/safeshell/safeshell/internal/errx"
	"github.com/safeshell/safeshell/pkg/api"
)

// batchWorkers bounds the concurrency of a batch command check. Checks
// stat the filesystem, so a modest bound beats one goroutine per command.
const batchWorkers = 8

// BatchResult holds per-command results plus the aggregate denial lists.
// The aggregates preserve the input order of the commands.
type BatchResult struct {
	Results    map[string]api.PermissionResult
	NotAllowed []string
	NotFound   []string
}

// AllAllowed reports whether every checked command passed.
func (b *BatchResult) AllAllowed() bool {
	return len(b.NotAllowed) == 0 && len(b.NotFound) == 0
}

// Err folds the denial lists into an error matchable with
// api.ErrCommandNotAllowed / api.ErrCommandNotFound, or nil when every
// command passed.
func (b *BatchResult) Err() error {
	var errs []error
	if len(b.NotAllowed) > 0 {
		errs = append(errs, errx.With(api.ErrCommandNotAllowed, ": %s", strings.Join(b.NotAllowed, ", ")))
	}
	if len(b.NotFound) > 0 {
		errs = append(errs, errx.With(api.ErrCommandNotFound, ": %s", strings.Join(b.NotFound, ", ")))
	}
	return errors.Join(errs...)
}

// CheckCommands checks many commands concurrently. It never short-circuits:
// every command is checked and classified so the caller can surface all
// denials in one escalation round.
func CheckCommands(commands []string, cfg *api.Config, cwd string) *BatchResult {
	results := make([]api.PermissionResult, len(commands))

	p := pool.New().WithMaxGoroutines(batchWorkers)
	for i, command := range commands {
		p.Go(func() {
			results[i] = CheckCommand(command, cfg, cwd)
		})
	}
	p.Wait()

	batch := &BatchResult{Results: make(map[string]api.PermissionResult, len(commands))}
	for i, command := range commands {
		batch.Results[command] = results[i]
		switch results[i].Status {
		case api.StatusNotAllowed:
			batch.NotAllowed = append(batch.NotAllowed, command)
		case api.StatusNotFound:
			batch.NotFound = append(batch.NotFound, command)
		}
	}
	return batch
}
