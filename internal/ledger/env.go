package ledger

import "time"

// Env is the host-provided view of the ledger for one invocation.
type Env struct {
	Height   uint64    `json:"height"`
	Time     time.Time `json:"time"`
	Contract string    `json:"contract"`
}

// Unix returns the block time in seconds.
func (e Env) Unix() int64 {
	return e.Time.Unix()
}
