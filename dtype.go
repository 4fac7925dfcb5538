package debrismap

import (
	"fmt"
	"math"
	"strings"

	"github.com/airbusgeo/godal"
)

var dataTypeNames = map[string]godal.DataType{
	"uint8":   godal.Byte,
	"byte":    godal.Byte,
	"uint16":  godal.UInt16,
	"int16":   godal.Int16,
	"uint32":  godal.UInt32,
	"int32":   godal.Int32,
	"float32": godal.Float32,
	"float64": godal.Float64,
}

// ParseDataType maps a numpy-style type name (uint8, int16, float32, ...) to
// a gdal pixel type. Complex and unknown types are rejected.
func ParseDataType(name string) (godal.DataType, error) {
	dt, ok := dataTypeNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return godal.Unknown, fmt.Errorf("%w: %q", ErrUnsupportedDataType, name)
	}
	return dt, nil
}

// DataTypeName is the inverse of ParseDataType
func DataTypeName(dt godal.DataType) string {
	switch dt {
	case godal.Byte:
		return "uint8"
	case godal.UInt16:
		return "uint16"
	case godal.Int16:
		return "int16"
	case godal.UInt32:
		return "uint32"
	case godal.Int32:
		return "int32"
	case godal.Float32:
		return "float32"
	case godal.Float64:
		return "float64"
	}
	return dt.String()
}

func isInteger(dt godal.DataType) bool {
	switch dt {
	case godal.Byte, godal.UInt16, godal.Int16, godal.UInt32, godal.Int32:
		return true
	}
	return false
}

func isFloat(dt godal.DataType) bool {
	return dt == godal.Float32 || dt == godal.Float64
}

// valueRange returns the natural range of a pixel type: the representable
// range for integers, [0,1] for floating point.
func valueRange(dt godal.DataType) (float64, float64) {
	switch dt {
	case godal.Byte:
		return 0, math.MaxUint8
	case godal.UInt16:
		return 0, math.MaxUint16
	case godal.Int16:
		return math.MinInt16, math.MaxInt16
	case godal.UInt32:
		return 0, math.MaxUint32
	case godal.Int32:
		return math.MinInt32, math.MaxInt32
	}
	return 0, 1
}

func representable(v float64, dt godal.DataType) bool {
	if !isInteger(dt) {
		return true
	}
	lo, hi := valueRange(dt)
	return v >= lo && v <= hi && v == math.Trunc(v)
}

// castValue mimics a C-style cast to dt: truncation toward zero and clamping
// for integer types, float32 rounding for Float32.
func castValue(v float64, dt godal.DataType) float64 {
	switch {
	case isInteger(dt):
		if math.IsNaN(v) {
			return 0
		}
		lo, hi := valueRange(dt)
		v = math.Trunc(v)
		return math.Max(lo, math.Min(hi, v))
	case dt == godal.Float32:
		return float64(float32(v))
	}
	return v
}
