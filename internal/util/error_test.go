package util

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

func (suite *UnitTestSuite) TestIsTransientError() {
	type testCase struct {
		err    error
		expect bool
	}
	testCases := []testCase{
		{errors.New("Not transient"), false},
		{context.Canceled, false},
		{mongo.WriteConcernError{}, false},
		{mongo.CommandError{Code: 6}, true},
		{mongo.CommandError{Code: 42}, false},
		{mongo.CommandError{Code: 175}, true},
		{mongo.CommandError{Code: 0}, false},
		{mongo.CommandError{Code: 0, Message: "not master"}, true},
		{mongo.CommandError{Code: 1234567, Labels: []string{"NetworkError"}}, true},
		{mongo.CommandError{Code: 1234567, Labels: []string{"SomeNotTransientThing"}}, false},
		{mongo.CommandError{Code: 1234567, Labels: []string{"SomeNotTransientThing", "NetworkError"}}, true},
		{mongo.CommandError{Code: 1234567, Labels: []string{"TransientTransactionError"}}, true},
		{errors.Wrap(mongo.CommandError{Code: 91}, "wrapped"), true},
	}
	for _, c := range testCases {
		if c.expect {
			suite.True(IsTransientError(c.err), "%v", c.err)
		} else {
			suite.False(IsTransientError(c.err), "%v", c.err)
		}
	}
}

func (suite *UnitTestSuite) TestIsSplitBoundaryExistsError() {
	suite.True(IsSplitBoundaryExistsError(mongo.CommandError{
		Code:    InvalidOptions,
		Message: "new split key { region: \"us\" } is a boundary key of existing chunk [{ region: \"eu\" },{ region: \"us\" })",
	}))
	suite.True(IsSplitBoundaryExistsError(mongo.CommandError{
		Message: "cannot split on initial or final chunk's key",
	}))
	suite.True(IsSplitBoundaryExistsError(errors.Wrap(
		mongo.CommandError{Code: IllegalOperation, Message: "split key is already a split point"},
		"splitting",
	)))

	suite.False(IsSplitBoundaryExistsError(nil))
	suite.False(IsSplitBoundaryExistsError(mongo.CommandError{
		Code:    13,
		Message: "is a boundary key of existing chunk",
	}), "unauthorized must not look idempotent")
	suite.False(IsSplitBoundaryExistsError(mongo.CommandError{
		Code:    InvalidOptions,
		Message: "shard key pattern mismatch",
	}))
}

func (suite *UnitTestSuite) TestGetErrorCode() {
	suite.Equal(0, GetErrorCode(nil))
	suite.Equal(0, GetErrorCode(errors.New("plain")))
	suite.Equal(AlreadyInitialized, GetErrorCode(mongo.CommandError{Code: AlreadyInitialized}))
	suite.True(IsAlreadyInitializedError(errors.Wrap(mongo.CommandError{Code: 23}, "enableSharding")))
	suite.True(IsNamespaceExistsError(mongo.CommandError{Code: NamespaceExists}))
	suite.True(IsDuplicateKeyError(mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}},
	}))
}
