package agg

import (
	"go.mongodb.org/mongo-driver/bson"
)

// FieldRef returns the aggregation reference to a (possibly dotted) field
// path, e.g. "region" -> "$region".
func FieldRef(path string) string {
	return "$" + path
}

// ---------------------------------------------

type Or []any

var _ bson.Marshaler = Or{}

func (o Or) MarshalBSON() ([]byte, error) {
	return bson.Marshal(bson.D{
		{"$or", []any(o)},
	})
}
