package journal

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

const (
	schemaVersionKey = "meta/formatVersion"
	schemaVersion    = uint16(1)
)

func verifySchemaVersion(db *badger.DB) error {
	versionBytes := formatUint(schemaVersion)

	return db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(schemaVersionKey), versionBytes)
		} else if err != nil {
			return errors.Wrapf(err, "reading %#q", schemaVersionKey)
		}

		found, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrapf(err, "reading %#q", schemaVersionKey)
		}

		if bytes.Equal(found, versionBytes) {
			return nil
		}

		foundVersion, err := parseUint(found)
		if err != nil {
			return fmt.Errorf("parsing persisted journal version (%v): %w", found, err)
		}

		return fmt.Errorf(
			"found journal version %d, but %d is required; is this journal from a prior version of this tool?",
			foundVersion,
			schemaVersion,
		)
	})
}

func parseUint(buf []byte) (uint64, error) {
	val, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %#q as %T: %w", string(buf), val, err)
	}

	return val, nil
}

func formatUint[T constraints.Unsigned](num T) []byte {
	return []byte(strconv.FormatUint(uint64(num), 10))
}
