package mbson

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConvertToRawValue marshals thing into a bson.RawValue. A nil thing
// becomes BSON null.
func ConvertToRawValue(thing any) (bson.RawValue, error) {
	if thing == nil {
		thing = primitive.Null{}
	}

	t, val, err := bson.MarshalValue(thing)
	if err != nil {
		return bson.RawValue{}, errors.Wrapf(err, "failed to encode value (%T) to BSON (%v)", thing, thing)
	}

	return bson.RawValue{
		Type:  t,
		Value: val,
	}, nil
}

// MustConvertToRawValue is ConvertToRawValue for tests; it panics on
// failure.
func MustConvertToRawValue(thing any) bson.RawValue {
	return lo.Must(ConvertToRawValue(thing))
}
