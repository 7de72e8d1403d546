package embedding

import (
	"context"
	"errors"
)

// ErrModelUnavailable means the detector has not loaded its weights yet. Callers
// must not treat it as "no face".
var ErrModelUnavailable = errors.New("face model unavailable")

// DescriptorProvider turns one image into a face descriptor.
// A nil descriptor with a nil error means no face was found in the frame.
type DescriptorProvider interface {
	Extract(ctx context.Context, image []byte) ([]float64, error)
}
