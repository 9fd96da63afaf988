package analyst_directory

import (
	"context"

	"github.com/clearco/calendar-connector/internal/domain"
)

// AnalystDirectory hands out point-in-time snapshots of the known-analyst
// set.  The directory itself is owned by the analyst-directory collaborator;
// this core only reads it.
type AnalystDirectory interface {
	GetAnalystIndex(ctx context.Context) (domain.AnalystIndex, error)
}
