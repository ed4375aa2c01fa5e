package diff

import "errors"

// ErrDimensionMismatch is returned when the two bitmaps cannot be compared
// pixel for pixel.
var ErrDimensionMismatch = errors.New("diff: bitmaps have different sizes")

// BuildDiffMask compares two equal-size pixel buffers and returns a mask
// with 1 where they differ and 0 where they match.
func BuildDiffMask(original, modified []byte) ([]byte, error) {
	if len(original) != len(modified) {
		return nil, ErrDimensionMismatch
	}

	mask := make([]byte, len(original))
	for i := range original {
		if original[i] != modified[i] {
			mask[i] = 1
		}
	}
	return mask, nil
}
