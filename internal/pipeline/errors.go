package pipeline

import "errors"

// ErrInputRequired is the validation failure for an invocation supplying
// neither or both of raw input and canonical item.
var ErrInputRequired = errors.New("either source data or canonical data must be provided")
