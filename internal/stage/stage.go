// Package stage defines the contract shared by the dubbing pipeline stages.
//
// Each stage lives in its own subpackage as a struct with its collaborators
// injected and a single Run method. The orchestrator drives the stages in
// order and maps the returned error onto the stage status: nil means
// succeeded, an error wrapping [ErrDegraded] means the stage finished with
// losses its policy tolerates (the job continues and carries a warning), and
// any other error means the stage failed.
package stage

import (
	"context"
	"errors"

	"github.com/MrWong99/redub/internal/job"
)

// ErrDegraded marks a stage result with tolerated losses. Wrap it with
// fmt.Errorf("%w: ...") to carry the reason.
var ErrDegraded = errors.New("stage degraded")

// ErrInvariant marks a violated pipeline invariant, e.g. the assembled track
// drifting from the source duration. Always fatal.
var ErrInvariant = errors.New("invariant violated")

// Runner is one pipeline stage.
type Runner interface {
	// Name returns the stage name as it appears in the job's stage table.
	Name() string

	// Run reads the job's current state, performs the stage's work and
	// commits the results back onto the job. The context bounds all
	// external calls the stage makes.
	Run(ctx context.Context, j *job.Job) error
}
