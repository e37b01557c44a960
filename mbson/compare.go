package mbson

import (
	"bytes"
	"cmp"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Ranks follow the server's cross-type sort order:
// https://www.mongodb.com/docs/manual/reference/bson-type-comparison-order/
var typeRank = map[bsontype.Type]int{
	bson.TypeMinKey:           1,
	bson.TypeUndefined:        2,
	bson.TypeNull:             2,
	bson.TypeInt32:            3,
	bson.TypeInt64:            3,
	bson.TypeDouble:           3,
	bson.TypeDecimal128:       3,
	bson.TypeSymbol:           4,
	bson.TypeString:           4,
	bson.TypeEmbeddedDocument: 5,
	bson.TypeArray:            6,
	bson.TypeBinary:           7,
	bson.TypeObjectID:         8,
	bson.TypeBoolean:          9,
	bson.TypeDateTime:         10,
	bson.TypeTimestamp:        11,
	bson.TypeRegex:            12,
	bson.TypeDBPointer:        13,
	bson.TypeJavaScript:       14,
	bson.TypeCodeWithScope:    15,
	bson.TypeMaxKey:           100,
}

// CompareRawValues returns -1, 0, or 1 according to how the server would
// order a and b in an index.
//
// Scalars compare exactly, except that mixed integer/float comparisons go
// through float64. Documents, arrays, regexes, and code compare by their
// raw bytes, which is stable but only approximates the server's ordering.
func CompareRawValues(a, b bson.RawValue) int {
	if rankCmp := cmp.Compare(rankOf(a.Type), rankOf(b.Type)); rankCmp != 0 {
		return rankCmp
	}

	switch rankOf(a.Type) {
	case typeRank[bson.TypeMinKey], typeRank[bson.TypeNull], typeRank[bson.TypeMaxKey]:
		return 0
	case typeRank[bson.TypeInt32]:
		return compareNumbers(a, b)
	case typeRank[bson.TypeString]:
		return bytes.Compare(stringBytes(a), stringBytes(b))
	case typeRank[bson.TypeBinary]:
		aSub, aData := a.Binary()
		bSub, bData := b.Binary()

		if lenCmp := cmp.Compare(len(aData), len(bData)); lenCmp != 0 {
			return lenCmp
		}
		if subCmp := cmp.Compare(aSub, bSub); subCmp != 0 {
			return subCmp
		}
		return bytes.Compare(aData, bData)
	case typeRank[bson.TypeObjectID]:
		aOID, bOID := a.ObjectID(), b.ObjectID()
		return bytes.Compare(aOID[:], bOID[:])
	case typeRank[bson.TypeBoolean]:
		return cmp.Compare(boolRank(a.Boolean()), boolRank(b.Boolean()))
	case typeRank[bson.TypeDateTime]:
		return cmp.Compare(a.DateTime(), b.DateTime())
	case typeRank[bson.TypeTimestamp]:
		aT, aI := a.Timestamp()
		bT, bI := b.Timestamp()

		if tCmp := cmp.Compare(aT, bT); tCmp != 0 {
			return tCmp
		}
		return cmp.Compare(aI, bI)
	}

	return bytes.Compare(a.Value, b.Value)
}

// RawValuesEqual indicates whether the server would treat a and b as the
// same index key.
func RawValuesEqual(a, b bson.RawValue) bool {
	return CompareRawValues(a, b) == 0
}

func rankOf(t bsontype.Type) int {
	if rank, ok := typeRank[t]; ok {
		return rank
	}

	// Unknown types sort just below MaxKey.
	return typeRank[bson.TypeMaxKey] - 1
}

func compareNumbers(a, b bson.RawValue) int {
	aInt, aIsInt := integerValue(a)
	bInt, bIsInt := integerValue(b)

	if aIsInt && bIsInt {
		return cmp.Compare(aInt, bInt)
	}

	return cmp.Compare(floatValue(a), floatValue(b))
}

func integerValue(val bson.RawValue) (int64, bool) {
	switch val.Type {
	case bson.TypeInt32:
		return int64(val.Int32()), true
	case bson.TypeInt64:
		return val.Int64(), true
	}

	return 0, false
}

func floatValue(val bson.RawValue) float64 {
	switch val.Type {
	case bson.TypeInt32:
		return float64(val.Int32())
	case bson.TypeInt64:
		return float64(val.Int64())
	case bson.TypeDouble:
		return val.Double()
	case bson.TypeDecimal128:
		parsed, err := strconv.ParseFloat(val.Decimal128().String(), 64)
		if err == nil {
			return parsed
		}
	}

	return 0
}

func stringBytes(val bson.RawValue) []byte {
	if sym, ok := val.SymbolOK(); ok {
		return []byte(sym)
	}

	return []byte(val.StringValue())
}

func boolRank(b bool) int {
	if b {
		return 1
	}

	return 0
}
