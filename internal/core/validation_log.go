package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/treedata/internal/logging"
	"github.com/JonMunkholm/treedata/internal/store"
	"github.com/JonMunkholm/treedata/internal/validation"
)

// logWriteTimeout bounds the validation log write after an import. It runs
// detached from the import context so a timed-out import is still logged.
const logWriteTimeout = 10 * time.Second

// recordIssues appends the run's errors and warnings to the validation
// log. Failures are logged and otherwise ignored.
func (s *Service) recordIssues(ctx context.Context, run *run) {
	res := run.res
	if len(res.Errors)+len(res.Warnings) == 0 {
		return
	}

	at := s.now().UTC()
	entries := make([]store.ValidationLogEntry, 0, len(res.Errors)+len(res.Warnings))
	for _, is := range res.Errors {
		entries = append(entries, run.logEntry(is, at))
	}
	for _, is := range res.Warnings {
		entries = append(entries, run.logEntry(is, at))
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()

	if err := s.store.AppendValidationLog(wctx, entries); err != nil {
		logging.FromContext(ctx).Warn("validation log write failed",
			"entries", len(entries),
			"error", err,
		)
	}
}

func (r *run) logEntry(is validation.Issue, at time.Time) store.ValidationLogEntry {
	e := store.ValidationLogEntry{
		ImportID:   r.res.ImportID,
		TreeID:     r.res.TreeID,
		ColumnName: is.Column,
		Value:      is.Value,
		ErrorType:  string(is.Kind),
		Message:    is.Message,
		LoggedAt:   at,
	}
	if id, ok := r.tableIDs[is.Table]; ok {
		e.TableID = &id
	}
	if is.Row > 0 {
		row := is.Row
		e.RowIndex = &row
	}
	return e
}
