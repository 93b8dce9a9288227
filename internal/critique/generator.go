// Package critique turns an activity into a short text critique through a
// language-model collaborator.
package critique

import (
	"context"

	"github.com/zjywill/StravaCritiques/internal/domain"
)

// Generator produces the critique text for one activity. Failures wrap
// domain.ErrGeneration and are per-item: the caller records nothing and the
// activity is retried on the next run.
type Generator interface {
	Generate(ctx context.Context, activity domain.Activity) (string, error)
}
