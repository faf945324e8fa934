package exception

import "github.com/yanun0323/errors"

// General errors
var (
	ErrNotFound        = errors.New("not found")
	ErrNilInstance     = errors.New("nil instance")
	ErrTypeUnsupported = errors.New("type unsupported")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")
)
