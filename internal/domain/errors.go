package domain

import "errors"

var (
	ErrInvalidImageShape   = errors.New("invalid image shape")
	ErrModelInvocation     = errors.New("model invocation failed")
	ErrParameterOutOfRange = errors.New("parameter out of range")
)
