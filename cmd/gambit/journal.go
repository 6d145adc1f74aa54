package main

import (
	"context"
	"errors"

	"github.com/discochess/gambit/internal/journal/diskjournal"
)

// openJournal opens the configured journal for inspection.
func openJournal(ctx context.Context) (*diskjournal.Journal, error) {
	if cfg.Journal.Dir == "" {
		return nil, errors.New("journal.dir is not set; use --journal or GAMBIT_JOURNAL_DIR")
	}
	return diskjournal.Open(ctx, cfg.Journal.Dir, diskjournal.WithLogger(log.Named("journal")))
}
