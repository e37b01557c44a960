package util

import (
	"io"
	"net"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Server codes after which a retry of the same command can succeed.
var transientErrorCodes = mapset.NewSet(
	6,     // HostUnreachable
	7,     // HostNotFound
	43,    // CursorNotFound
	50,    // MaxTimeMSExpired
	64,    // WriteConcernFailed
	70,    // ShardNotFound
	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	112,   // WriteConflict
	117,   // ConflictingOperationInProgress
	133,   // FailedToSatisfyReadPreference
	175,   // QueryPlanKilled
	189,   // PrimarySteppedDown
	202,   // NetworkInterfaceExceededTimeLimit
	262,   // ExceededTimeLimit
	314,   // ObjectIsBusy
	317,   // ConnectionPoolExpired
	365,   // TemporarilyUnavailable
	384,   // ConnectionError
	402,   // ResourceExhausted
	407,   // PooledConnectionAcquisitionExceededTimeLimit
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11601, // Interrupted
	11602, // InterruptedDueToReplStateChange
	13388, // StaleConfig
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
)

// mongo.IsNetworkError covers the "NetworkError" label.
var transientErrorLabels = [...]string{
	"RetryableWriteError",
	"TransientTransactionError",
}

// IsTransientError indicates whether err is a connectivity or server
// condition that a retry can outlast.
func IsTransientError(err error) bool {
	err = errors.Cause(err)
	if err == nil || IsContextCanceledError(err) {
		return false
	}

	if _, ok := err.(*mongo.WriteConcernError); ok {
		return true
	}

	return isNetworkError(err) ||
		isConnectionError(err) ||
		hasTransientErrorCode(err) ||
		hasTransientErrorLabel(err) ||
		isRetryablePoolError(err) ||
		isServerSelectionError(err)
}

func isNetworkError(err error) bool {
	if _, ok := err.(net.Error); ok {
		return true
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return true
	}

	return mongo.IsNetworkError(err)
}

func isConnectionError(err error) bool {
	// The network error is usually inside the ConnectionError.
	if connErr, ok := err.(topology.ConnectionError); ok {
		return isNetworkError(connErr.Wrapped)
	}

	return false
}

func isRetryablePoolError(err error) bool {
	rerr, ok := err.(driver.RetryablePoolError)
	return ok && rerr.Retryable()
}

func isServerSelectionError(err error) bool {
	_, ok := err.(topology.ServerSelectionError)
	return ok
}

func hasTransientErrorCode(err error) bool {
	// Old servers send "not master" without a code.
	if GetErrorCode(err) == 0 && strings.Contains(err.Error(), "not master") {
		return true
	}

	for code := range transientErrorCodes.Iter() {
		if mmongo.ErrorHasCode(err, code) {
			return true
		}
	}

	return false
}

func hasTransientErrorLabel(err error) bool {
	serverErr, ok := err.(mongo.ServerError)
	if !ok {
		return false
	}

	for _, label := range transientErrorLabels {
		if serverErr.HasErrorLabel(label) {
			return true
		}
	}

	return false
}
