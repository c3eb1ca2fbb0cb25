package service

import "errors"

// Stable error kinds. Handlers dispatch on these with errors.Is; wrapped
// storage errors fall through to the generic branch.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrAlreadySettled = errors.New("month already settled")
	ErrNotSettled     = errors.New("month not settled")
)
