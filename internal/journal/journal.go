// Package journal persists batch outcomes in a local datastore so that a
// re-run of the same job can skip finished batches.
package journal

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/mongodb-labs/data-inflater/internal/inflater"
	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/pkg/errors"
)

type Journal struct {
	log *logger.Logger
	db  *badger.DB
}

var _ inflater.JobJournal = &Journal{}

// Open opens (or creates) the journal in the given directory.
func Open(l *logger.Logger, path string) (*Journal, error) {
	db, err := badger.Open(
		badger.DefaultOptions(path).
			WithLogger(&badgerLogger{l}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %#q", path)
	}

	err = verifySchemaVersion(db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "verifying/setting journal’s version")
	}

	return &Journal{l, db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// DoneBatches returns the written-document count of each finished batch
// of the job with the given fingerprint.
func (j *Journal) DoneBatches(ctx context.Context, fingerprint string) (map[int]int64, error) {
	done := map[int]int64{}

	for result := range j.GetBatchReader(ctx, fingerprint) {
		record, err := result.Get()
		if err != nil {
			return nil, err
		}

		done[record.Index] = record.Written
	}

	// The reader stops early, without error, on cancellation.
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "reading journaled batches")
	}

	return done, nil
}
