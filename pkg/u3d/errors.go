package u3d

import (
	"errors"
	"fmt"
)

// Encoder and scanner errors.
var (
	ErrUnsupported      = fmt.Errorf("u3d: %w", errors.ErrUnsupported)
	ErrInvalidImage     = errors.New("u3d: invalid texture image")
	ErrTruncatedBlock   = errors.New("u3d: truncated block")
	ErrMisalignedStream = errors.New("u3d: stream length is not a multiple of 4")
)
