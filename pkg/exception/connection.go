package exception

import "github.com/yanun0323/errors"

var (
	ErrConnectionClose   = errors.New("connection closed")
	ErrEmptyConnection   = errors.New("connection: empty address")
	ErrPublishNotConfirm = errors.New("connection: publish not confirmed")
)
