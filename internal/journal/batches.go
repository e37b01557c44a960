package journal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
)

const batchKeyPrefix = "batch/"

// BatchRecord is the journaled outcome of one finished batch.
type BatchRecord struct {
	Index      int       `bson:"-"`
	Written    int64     `bson:"written"`
	FinishedAt time.Time `bson:"finishedAt"`
}

func jobPrefix(fingerprint string) []byte {
	return []byte(batchKeyPrefix + fingerprint + "/")
}

// Zero-padding keeps the keys in batch order.
func batchKey(fingerprint string, index int) []byte {
	return append(jobPrefix(fingerprint), fmt.Sprintf("%010d", index)...)
}

// RecordDone journals that the given batch finished.
func (j *Journal) RecordDone(_ context.Context, fingerprint string, index int, written int64) error {
	value, err := bson.Marshal(BatchRecord{
		Written:    written,
		FinishedAt: time.Now(),
	})
	if err != nil {
		return errors.Wrapf(err, "marshaling batch %d’s record", index)
	}

	return errors.Wrapf(
		j.db.Update(func(txn *badger.Txn) error {
			return txn.Set(batchKey(fingerprint, index), value)
		}),
		"persisting batch %d",
		index,
	)
}

// Forget deletes everything journaled for the given job.
func (j *Journal) Forget(_ context.Context, fingerprint string) error {
	return errors.Wrapf(
		j.db.DropPrefix(jobPrefix(fingerprint)),
		"forgetting job %#q",
		fingerprint,
	)
}

// GetBatchReader streams the job's finished batches in index order. A
// read failure is the stream's last element.
func (j *Journal) GetBatchReader(ctx context.Context, fingerprint string) <-chan mo.Result[BatchRecord] {
	retChan := make(chan mo.Result[BatchRecord])
	prefix := jobPrefix(fingerprint)

	go func() {
		defer close(retChan)

		err := j.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				key := string(item.Key())

				index, err := strconv.Atoi(strings.TrimPrefix(key, string(prefix)))
				if err != nil {
					return errors.Wrapf(err, "found invalid batch key %#q", key)
				}

				var record BatchRecord
				err = item.Value(func(val []byte) error {
					return bson.Unmarshal(val, &record)
				})
				if err != nil {
					return errors.Wrapf(err, "reading batch %d’s record", index)
				}

				record.Index = index

				select {
				case <-ctx.Done():
					return ctx.Err()
				case retChan <- mo.Ok(record):
				}
			}

			return nil
		})

		if err == nil {
			return
		}

		if ctx.Err() != nil {
			j.log.Debug().
				Err(err).
				Msg("Stopped reading journaled batches.")

			return
		}

		select {
		case <-ctx.Done():
		case retChan <- mo.Err[BatchRecord](err):
		}
	}()

	return retChan
}
