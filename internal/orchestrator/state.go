package orchestrator

import (
	"fmt"

	"github.com/offerscan/catalogue-parser/internal/platform/models"
)

// transitions is the job lifecycle table. Any transition not listed is
// rejected, except that failed is reachable from every non-terminal state.
var transitions = map[models.JobStatus]models.JobStatus{
	models.StatusPending:     models.StatusFetching,
	models.StatusFetching:    models.StatusAssembling,
	models.StatusAssembling:  models.StatusNormalizing,
	models.StatusNormalizing: models.StatusOCR,
	models.StatusOCR:         models.StatusExtracting,
	models.StatusExtracting:  models.StatusCompleted,
}

// ErrInvalidTransition is wrapped by transition errors.
var ErrInvalidTransition = fmt.Errorf("invalid job status transition")

// checkTransition validates moving a job from one status to the next.
func checkTransition(from, to models.JobStatus) error {
	if to == models.StatusFailed {
		if from.IsTerminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		return nil
	}
	if next, ok := transitions[from]; ok && next == to {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
