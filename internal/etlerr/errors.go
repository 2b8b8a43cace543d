// Package etlerr defines the error taxonomy shared by the pipeline stages.
//
// Record-level defects (missing fields, unresolved references) are counted and
// absorbed by the stage that finds them. Task-level defects are returned as
// errors wrapping one of the sentinels below so callers can classify them
// with errors.Is.
package etlerr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSourceUnreadable means extraction could not begin.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrEmptyBatchAfterValidation is returned only when the pipeline policy
	// treats a fully emptied batch as fatal.
	ErrEmptyBatchAfterValidation = errors.New("empty batch after validation")

	// ErrLoadFailed wraps any storage error raised during a bulk insert. The
	// Loader call that returned it has been rolled back.
	ErrLoadFailed = errors.New("load failed")

	// ErrRefreshFailed wraps a storage error raised while rebuilding a derived
	// view. Loads that preceded the refresh stay committed.
	ErrRefreshFailed = errors.New("refresh failed")

	// ErrReferentialGap marks a record whose parent reference does not resolve.
	// It is used for counting and logging; it never fails a task on its own.
	ErrReferentialGap = errors.New("referential gap")

	// ErrSkipped is recorded on tasks that never ran because an upstream task
	// failed or the run was canceled.
	ErrSkipped = errors.New("skipped")
)

// Kind returns a short, stable label for err suitable for logs and metric
// labels. Unknown errors map to "error".
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrSourceUnreadable):
		return "source_unreadable"
	case errors.Is(err, ErrEmptyBatchAfterValidation):
		return "empty_batch_after_validation"
	case errors.Is(err, ErrLoadFailed):
		return "load_failed"
	case errors.Is(err, ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(err, ErrReferentialGap):
		return "referential_gap"
	case errors.Is(err, ErrSkipped):
		return "skipped"
	default:
		return "error"
	}
}

// SourceUnreadable wraps cause with ErrSourceUnreadable and the source name.
func SourceUnreadable(source string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrSourceUnreadable, source, cause)
}

// LoadFailed wraps cause with ErrLoadFailed and the target table.
func LoadFailed(table string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrLoadFailed, table, cause)
}

// RefreshFailed wraps cause with ErrRefreshFailed and the view name.
func RefreshFailed(view string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrRefreshFailed, view, cause)
}
