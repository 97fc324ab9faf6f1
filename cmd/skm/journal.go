package main

import (
	"context"
	"errors"

	"github.com/forest6511/skm/pkg/backup"
	"github.com/forest6511/skm/pkg/history"
)

// recordRun appends run to the history journal. The journal is best effort:
// failures are logged and never fail the command.
func recordRun(ctx context.Context, run *history.Run) {
	if cfg == nil || cfg.HistoryPath == "" {
		return
	}
	store, err := history.Open(ctx, cfg.HistoryPath)
	if err != nil {
		logger.Warn(ctx, "failed to open history", "path", cfg.HistoryPath, "error", err)
		return
	}
	defer store.Close()

	id, err := store.Record(ctx, run)
	if err != nil {
		logger.Warn(ctx, "failed to record history", "error", err)
		return
	}
	logger.Debug(ctx, "recorded history", "run_id", id, "op", string(run.Op))
}

// exportRun builds the journal entry for an export.
func exportRun(location string, res *backup.ExportResult, err error) *history.Run {
	run := &history.Run{Op: history.OpExport, Archive: location}
	if err != nil {
		run.Error = err.Error()
		return run
	}
	run.ArchiveID = res.Archive.ID.String()
	run.KeyCount = len(res.Archive.Entries)
	run.Applied = run.KeyCount
	for _, e := range res.Archive.Entries {
		run.Entries = append(run.Entries, history.Entry{
			Name:     e.Name,
			Decision: "export",
			Target:   e.Name,
			Outcome:  "exported",
		})
	}
	return run
}

// importRun builds the journal entry for an import.
func importRun(location string, strategy backup.Strategy, dryRun bool, res *backup.ImportResult, err error) *history.Run {
	run := &history.Run{
		Op:       history.OpImport,
		Archive:  location,
		Strategy: strategy.String(),
		DryRun:   dryRun,
	}
	if err != nil {
		run.Error = err.Error()
		return run
	}

	run.ArchiveID = res.Archive.ID.String()
	run.KeyCount = len(res.Plan.Entries)
	run.Applied = len(res.Applied)
	run.Skipped = len(res.Skipped)
	run.Failed = len(res.Failed)

	failed := make(map[string]error, len(res.Failed))
	for _, f := range res.Failed {
		failed[f.Name] = f.Err
	}
	for _, pe := range res.Plan.Entries {
		e := history.Entry{
			Name:     pe.Entry.Name,
			Decision: pe.Decision.String(),
			Target:   pe.Target,
		}
		switch ferr, ok := failed[pe.Target]; {
		case dryRun:
			e.Outcome = "planned"
		case ok:
			e.Outcome = "failed"
			e.Error = ferr.Error()
		case pe.Decision == backup.DecisionSkip:
			e.Outcome = "skipped"
		default:
			e.Outcome = "written"
		}
		run.Entries = append(run.Entries, e)
	}
	if res.Partial() {
		run.Error = errors.Join(storageErrors(res.Failed)...).Error()
	}
	return run
}

func storageErrors(failed []*backup.StorageError) []error {
	errs := make([]error, len(failed))
	for i, f := range failed {
		errs[i] = f
	}
	return errs
}
