package debrismap

import (
	"errors"
	"fmt"
)

// ErrInvalidOption is returned by constructors when an option carries an
// out-of-range value
type ErrInvalidOption struct {
	msg string
}

func (err ErrInvalidOption) Error() string {
	return err.msg
}

var (
	// ErrUnsupportedDataType is a configuration error: the requested pixel
	// type is neither an integer nor a floating point type
	ErrUnsupportedDataType = errors.New("unsupported data type")

	// ErrNotInteger is returned when building a polygon reader over a band
	// that does not hold integer samples
	ErrNotInteger = errors.New("band is not integer valued")

	// ErrContract flags internal inconsistencies (size mismatch after unpad,
	// misaligned tiles, footprint diverging from the encoded transform). A
	// scene that hits it must be abandoned.
	ErrContract = errors.New("contract violation")

	// ErrPredictionSize is returned when the prediction function answers with
	// a buffer that does not hold exactly one float32 per padded tile pixel
	ErrPredictionSize = fmt.Errorf("%w: prediction size mismatch", ErrContract)
)
