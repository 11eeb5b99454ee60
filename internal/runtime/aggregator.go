package runtime

import (
	"log/slog"
	"sort"

	"github.com/pergolab/pergola/pkg/domain"
)

// aggregateResult is the fan-in barrier's summary of a completed batch.
type aggregateResult struct {
	outcomes  []domain.ItemOutcome // sorted by sequence index
	succeeded int
	failed    int
	timedOut  int
}

// aggregator is the fan-in barrier. It blocks until every item of the batch
// has a terminal outcome, then merges the outcomes into the store's
// ordered-append key sorted by sequence index. Retries never happen here;
// only terminal outcomes arrive.
type aggregator struct {
	store  *Store
	key    string
	logger *slog.Logger
}

// await drains the outcome channel (closed by the dispatcher once the whole
// batch is terminal), merges, and counts. Completion order is irrelevant:
// the merge is keyed by sequence index.
func (a *aggregator) await(outcomes <-chan domain.ItemOutcome) (aggregateResult, error) {
	var res aggregateResult
	for outcome := range outcomes {
		switch outcome.Status {
		case domain.StatusSucceeded:
			res.succeeded++
		case domain.StatusTimedOut:
			res.timedOut++
		default:
			res.failed++
		}
		if err := a.store.Merge(a.key, domain.Indexed{Index: outcome.Index, Value: outcome}); err != nil {
			return res, err
		}
		res.outcomes = append(res.outcomes, outcome)
	}

	sort.Slice(res.outcomes, func(i, j int) bool {
		return res.outcomes[i].Index < res.outcomes[j].Index
	})

	a.logger.Info("batch aggregated",
		"total", len(res.outcomes),
		"succeeded", res.succeeded,
		"failed", res.failed,
		"timed_out", res.timedOut,
	)
	return res, nil
}
