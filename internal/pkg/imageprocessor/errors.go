package imageprocessor

import (
	"fmt"

	"github.com/ManuelReschke/mediabridge/internal/pkg/apperror"
)

const (
	OpDecode = "decode"
	OpEncode = "encode"
)

// ImageProcessingError reports a failed decode or encode step.
// Decode failures match apperror.ErrImageDecode.
type ImageProcessingError struct {
	Op  string
	Err error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error: %s: %v", e.Op, e.Err)
}

func (e *ImageProcessingError) Unwrap() error {
	return e.Err
}

func (e *ImageProcessingError) Is(target error) bool {
	return target == apperror.ErrImageDecode && e.Op == OpDecode
}
