package canonical

import "errors"

var (
	// ErrInvalidItem marks a canonical item that fails validation.
	ErrInvalidItem = errors.New("invalid canonical item")

	// ErrTransform marks raw input the transformer could not normalize.
	ErrTransform = errors.New("transform failed")
)
