package util

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver"
)

// Server error codes that the inflater branches on. The full list is in
// the server's src/mongo/base/error_codes.yml.
const (
	IllegalOperation   = 20
	AlreadyInitialized = 23
	NamespaceExists    = 48
	InvalidOptions     = 72

	// Pre-3.2 servers report an existing namespace with this code.
	legacyNamespaceExists = 17399
)

// IsDuplicateKeyError indicates a unique-index violation.
func IsDuplicateKeyError(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsAlreadyInitializedError indicates an AlreadyInitialized error, which
// older servers return from enableSharding on a database whose sharding
// is already enabled.
func IsAlreadyInitializedError(err error) bool {
	return GetErrorCode(err) == AlreadyInitialized
}

// Servers phrase a split on an existing chunk bound differently across
// versions, and none of them use a dedicated error code.
var splitBoundaryExistsMessages = [...]string{
	"is a boundary key of existing chunk",
	"is already a split point",
	"cannot split on initial or final chunk's key",
	"is equal to chunk's min",
	"the split point is the same as the chunk",
}

// IsSplitBoundaryExistsError indicates a split command's complaint that
// the requested split key is already a chunk boundary.
func IsSplitBoundaryExistsError(err error) bool {
	if err == nil {
		return false
	}

	code := GetErrorCode(err)
	if code != 0 && code != IllegalOperation && code != InvalidOptions {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, candidate := range splitBoundaryExistsMessages {
		if strings.Contains(msg, candidate) {
			return true
		}
	}

	return false
}

func IsNamespaceExistsError(err error) bool {
	code := GetErrorCode(err)
	return code == NamespaceExists || code == legacyNamespaceExists
}

// IsContextCanceledError matches on the message because drivers and
// servers do not always wrap context.Canceled.
func IsContextCanceledError(err error) bool {
	return strings.Contains(err.Error(), context.Canceled.Error())
}

// GetErrorCode returns err's top-level server error code, or 0 if err is
// nil or carries no code. For a write exception this is the first write
// error's code.
func GetErrorCode(err error) int {
	switch e := errors.Cause(err).(type) {
	case mongo.CommandError:
		return int(e.Code)
	case driver.Error:
		return int(e.Code)
	case mongo.WriteError:
		return e.Code
	case mongo.WriteConcernError:
		return e.Code
	case mongo.WriteException:
		if len(e.WriteErrors) > 0 {
			return e.WriteErrors[0].Code
		}
		if e.WriteConcernError != nil {
			return e.WriteConcernError.Code
		}
	case driver.WriteCommandError:
		if len(e.WriteErrors) > 0 {
			return int(e.WriteErrors[0].Code)
		}
		if e.WriteConcernError != nil {
			return int(e.WriteConcernError.Code)
		}
	}

	return 0
}
