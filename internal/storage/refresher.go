package storage

import (
	"context"
	"log"
	"time"

	"shopetl/internal/etlerr"
)

// Refresher rebuilds derived views after a load. A refresh runs in its own
// call and never touches the committed base-relation loads before it.
type Refresher struct {
	Repo Repository
}

// Refresh rebuilds view from current base-relation contents. rowsLoaded is
// the inserted count of the preceding load, used for logging only: the view
// is rebuilt even when nothing new was inserted, since external writers may
// have changed products.
func (r Refresher) Refresh(ctx context.Context, view string, rowsLoaded int64) error {
	start := time.Now()
	if err := r.Repo.Refresh(ctx, view); err != nil {
		return etlerr.RefreshFailed(view, err)
	}
	log.Printf("refresher: view=%s rows_loaded=%d elapsed=%s", view, rowsLoaded, time.Since(start).Truncate(time.Millisecond))
	return nil
}
