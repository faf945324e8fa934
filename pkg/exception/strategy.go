package exception

import "github.com/yanun0323/errors"

var (
	ErrUnauthorized         = errors.New("strategy: unauthorized")
	ErrAlreadyInitialized   = errors.New("strategy: already initialized")
	ErrNotInitialized       = errors.New("strategy: not initialized")
	ErrInvalidGraph         = errors.New("strategy: invalid graph")
	ErrStrategyTooLarge     = errors.New("strategy: size exceeds limit")
	ErrEscrowedWithdraw     = errors.New("strategy: cannot withdraw escrowed denom")
	ErrUnknownEntry         = errors.New("strategy: unknown entry point")
	ErrAffiliateBpsTooLarge = errors.New("strategy: affiliate bps exceeds limit")
)
