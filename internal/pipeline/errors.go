package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/MrWong99/redub/internal/resilience"
	"github.com/MrWong99/redub/internal/stage"
	"github.com/MrWong99/redub/pkg/provider/translate"
)

// Kind classifies a fatal pipeline failure for the job record. The kind
// tells the caller whether resubmitting the job can help: transient provider
// failures are worth a retry, everything else needs a change first.
type Kind string

const (
	// KindConfig covers bad submissions: missing credentials, unknown
	// languages, unreadable inputs. Never retried.
	KindConfig Kind = "config"

	// KindProviderTransient covers rate limits, 5xx responses, timeouts
	// and exhausted retry schedules. Resubmitting may succeed.
	KindProviderTransient Kind = "provider_transient"

	// KindProviderPermanent covers non-429 client errors from a provider.
	KindProviderPermanent Kind = "provider_permanent"

	// KindAssetMissing covers files a stage expected but did not find.
	KindAssetMissing Kind = "asset_missing"

	// KindInvariant covers violated pipeline invariants, e.g. assembled
	// duration drift.
	KindInvariant Kind = "invariant"

	// KindStageFailed is the residual class for everything a stage policy
	// declared fatal without a more specific cause.
	KindStageFailed Kind = "stage_failed"
)

// Error is a fatal pipeline failure annotated with the stage that raised it
// and its classification.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps a stage error onto the failure taxonomy by inspecting its
// chain. Unrecognised errors fall into the stage_failed residual.
func Classify(err error) Kind {
	var se *translate.StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		if translate.IsRateLimited(err) || translate.IsServerErr(err) {
			return KindProviderTransient
		}
		return KindProviderPermanent
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, resilience.ErrAllFailed),
		errors.Is(err, resilience.ErrCircuitOpen):
		return KindProviderTransient
	case errors.Is(err, fs.ErrNotExist):
		return KindAssetMissing
	case errors.Is(err, stage.ErrInvariant):
		return KindInvariant
	default:
		return KindStageFailed
	}
}
