package ports

import (
	"context"
	"testing"
	"time"

	"github.com/pergolab/pergola/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReportStoreContract runs a suite of tests verifying that a ReportStore
// implementation adheres to the interface contract.
func RunReportStoreContract(t *testing.T, store ReportStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405")

	sample := func(id string) *domain.Report {
		return &domain.Report{
			RunID:     id,
			Graph:     "contract",
			Total:     2,
			Succeeded: 1,
			Failed:    1,
			Items: []domain.ItemOutcome{
				{Index: 0, Status: domain.StatusSucceeded, Attempts: 1},
				{Index: 1, Status: domain.StatusFailed, Attempts: 3,
					Failure: &domain.Failure{Kind: "error", Message: "boom"}},
			},
		}
	}

	t.Run("Save and Load", func(t *testing.T) {
		err := store.Save(ctx, sample(runID))
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, runID, loaded.RunID)
		assert.Equal(t, 2, loaded.Total)
		require.Len(t, loaded.Items, 2)
		assert.Equal(t, domain.StatusFailed, loaded.Items[1].Status)
		require.NotNil(t, loaded.Items[1].Failure)
		assert.Equal(t, "boom", loaded.Items[1].Failure.Message)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrReportNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sample(runID)))

		require.NoError(t, store.Delete(ctx, runID))

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrReportNotFound, "Load after Delete should return ErrReportNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"

		older := sample(id1)
		older.StartedAt = time.Now().Add(-time.Minute)
		newer := sample(id2)
		newer.StartedAt = time.Now()
		require.NoError(t, store.Save(ctx, older))
		require.NoError(t, store.Save(ctx, newer))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
		assert.Less(t, indexOf(runs, id1), indexOf(runs, id2), "List returns oldest first")
	})
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
