// Package reportutils keeps number, byte, and duration formatting
// consistent across progress lines and the final summary.
package reportutils

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/constraints"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const decimalPrecision = 2

var realNumFmtPattern = "%." + strconv.Itoa(decimalPrecision) + "f"

var printer = message.NewPrinter(language.AmericanEnglish)

// num16Plus excludes 8-bit integers, which can't hold a KiB.
type num16Plus interface {
	constraints.Float |
		~uint | ~uint16 | ~uint32 | ~uint64 |
		~int | ~int16 | ~int32 | ~int64
}

type realNum interface {
	constraints.Integer | constraints.Float
}

// DataUnit is a binary unit of data size.
type DataUnit string

const (
	Bytes DataUnit = "bytes"
	KiB   DataUnit = "KiB"
	MiB   DataUnit = "MiB"
	GiB   DataUnit = "GiB"
	TiB   DataUnit = "TiB"
	PiB   DataUnit = "PiB"
)

// Ascending, so the last unit is the biggest.
var dataUnits = []struct {
	unit DataUnit
	size uint64
}{
	{KiB, humanize.KiByte},
	{MiB, humanize.MiByte},
	{GiB, humanize.GiByte},
	{TiB, humanize.TiByte},
	{PiB, humanize.PiByte},
}

// DurationToHMS renders a duration as, e.g., "1h 22m 3.23s". Unlike
// Duration.String() the smallest unit is always the second.
func DurationToHMS(duration time.Duration) string {
	hours := int(math.Floor(duration.Hours()))
	minutes := int(math.Floor(duration.Minutes())) % 60

	str := FmtReal(math.Mod(duration.Seconds(), 60)) + "s"

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %s", hours, minutes, str)
	case minutes > 0:
		return fmt.Sprintf("%dm %s", minutes, str)
	default:
		return str
	}
}

// BytesToUnit renders count bytes as a number of the given unit, e.g.,
// 1024 and KiB give "1".
func BytesToUnit[T num16Plus](count T, unit DataUnit) string {
	if unit == Bytes {
		// Whole byte counts skip the float conversion, which would round
		// anything past 2^53.
		if whole := uint64(count); count >= 0 && T(whole) == count {
			return humanize.BigComma(new(big.Int).SetUint64(whole))
		}

		return FmtReal(float64(count))
	}

	for _, du := range dataUnits {
		if du.unit == unit {
			return FmtReal(float64(count) / float64(du.size))
		}
	}

	panic(fmt.Sprintf("unknown data unit: %s", unit))
}

// FindBestUnit returns the largest unit that count bytes fill at least
// once. Pass the result to BytesToUnit to render several counts alike.
func FindBestUnit[T num16Plus](count T) DataUnit {
	best := Bytes

	for _, du := range dataUnits {
		if float64(count) < float64(du.size) {
			break
		}

		best = du.unit
	}

	return best
}

// FmtBytes renders a single byte count in its best unit.
func FmtBytes[T num16Plus](count T) string {
	unit := FindBestUnit(count)
	return BytesToUnit(count, unit) + " " + string(unit)
}

// FmtReal renders a real number with thousands separators and at most
// two decimal places; trailing zeros are dropped.
func FmtReal[T realNum](num T) string {
	str := printer.Sprintf(realNumFmtPattern, num)

	if strings.Contains(str, ".") {
		str = strings.TrimSuffix(strings.TrimRight(str, "0"), ".")
	}

	return str
}

// FmtPercent renders numerator/denominator as a percentage without the
// "%". A numerator short of the denominator never rounds up to "100".
func FmtPercent[T, U realNum](numerator T, denominator U) string {
	str := FmtReal(100 * float64(numerator) / float64(denominator))

	if str == "100" && float64(numerator) < float64(denominator) {
		return "99." + strings.Repeat("9", decimalPrecision)
	}

	return str
}

// FmtCount renders an integer with thousands separators, e.g., "1,234,567".
func FmtCount[T constraints.Integer](count T) string {
	return humanize.Comma(int64(count))
}

// FmtRate renders count/elapsed as a per-second rate, or "0" if no time
// has elapsed.
func FmtRate[T realNum](count T, elapsed time.Duration) string {
	if elapsed <= 0 {
		return "0"
	}

	return FmtReal(float64(count) / elapsed.Seconds())
}
