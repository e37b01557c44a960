package util

import (
	"log"

	"github.com/mongodb-labs/data-inflater/internal/logger"
)

// Invariant exits the process with the given message if predicate is
// false. It is for programmer errors only.
func Invariant(logger *logger.Logger, predicate bool, message string, args ...any) {
	if predicate {
		return
	}

	if logger == nil {
		log.Fatalf(message, args...)
	}

	logger.Fatal().Msgf(message, args...)
}
