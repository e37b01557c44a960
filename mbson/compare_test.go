package mbson

import (
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func (s *UnitTestSuite) Test_CompareRawValues_CrossType() {
	oid := primitive.NewObjectID()

	ordered := []any{
		primitive.MinKey{},
		nil,
		int32(-5),
		2.5,
		int64(3),
		"abc",
		"abd",
		map[string]any{"a": 1},
		[]any{1},
		primitive.Binary{Data: []byte{1}},
		oid,
		false,
		true,
		primitive.NewDateTimeFromTime(time.Unix(1_000, 0)),
		primitive.Timestamp{T: 5, I: 1},
		primitive.MaxKey{},
	}

	for i := 1; i < len(ordered); i++ {
		low := MustConvertToRawValue(ordered[i-1])
		hi := MustConvertToRawValue(ordered[i])

		s.Assert().Equal(-1, CompareRawValues(low, hi), "%v < %v", ordered[i-1], ordered[i])
		s.Assert().Equal(1, CompareRawValues(hi, low), "%v > %v", ordered[i], ordered[i-1])
	}
}

func (s *UnitTestSuite) Test_CompareRawValues_Numbers() {
	s.Assert().True(RawValuesEqual(
		MustConvertToRawValue(int32(7)),
		MustConvertToRawValue(int64(7)),
	))
	s.Assert().True(RawValuesEqual(
		MustConvertToRawValue(int64(7)),
		MustConvertToRawValue(7.0),
	))

	dec, err := primitive.ParseDecimal128("7.5")
	s.Require().NoError(err)

	s.Assert().Equal(1, CompareRawValues(
		MustConvertToRawValue(dec),
		MustConvertToRawValue(int32(7)),
	))
}

func (s *UnitTestSuite) Test_CompareRawValues_Sort() {
	vals := []any{"us", "eu", "ap", int32(3), "eu"}

	sorted := slices.Clone(vals)
	slices.SortFunc(sorted, func(a, b any) int {
		return CompareRawValues(MustConvertToRawValue(a), MustConvertToRawValue(b))
	})

	s.Assert().Equal([]any{int32(3), "ap", "eu", "eu", "us"}, sorted)
}
