package ports

import (
	"context"

	"github.com/pergolab/pergola/pkg/domain"
)

// ReportStore archives completed run reports. Only terminal artifacts are
// stored; in-flight run state never leaves the engine.
type ReportStore interface {
	// Save persists the report under its run id.
	Save(ctx context.Context, report *domain.Report) error

	// Load retrieves a report by run id.
	// Returns domain.ErrReportNotFound if the run is unknown.
	Load(ctx context.Context, runID string) (*domain.Report, error)

	// List returns archived run ids, oldest first.
	List(ctx context.Context) ([]string, error)

	// Delete removes a report.
	Delete(ctx context.Context, runID string) error
}

// Submitter is the pipeline entry point consumed by transport adapters.
// *pergola.Pipeline satisfies it.
type Submitter interface {
	Submit(ctx context.Context, initial map[string]any) (*domain.Report, error)
}
