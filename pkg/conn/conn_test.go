package conn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/pkg/exception"
)

func TestPostgresDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  PostgresOption
		want string
	}{
		{desc: "defaults", want: "postgres://localhost:5432?sslmode=disable"},
		{
			desc: "full",
			opt:  PostgresOption{Host: "db", Port: 6543, User: "calc", Password: "p@ss", Database: "calc", Params: map[string]string{"application_name": "strategyd"}},
			want: "postgres://calc:p%40ss@db:6543/calc?application_name=strategyd&sslmode=disable",
		},
		{desc: "user only", opt: PostgresOption{User: "calc"}, want: "postgres://calc@localhost:5432?sslmode=disable"},
		{desc: "explicit dsn", opt: PostgresOption{ConnString: "host=db", Host: "ignored"}, want: "host=db"},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.opt.DSN())
		})
	}
}

func TestEmptyAddresses(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOption{})
	require.ErrorIs(t, err, exception.ErrEmptyConnection)

	_, err = NewAMQP(AMQPOption{})
	require.ErrorIs(t, err, exception.ErrEmptyConnection)

	var a *AMQP
	_, err = a.Channel()
	require.ErrorIs(t, err, exception.ErrConnectionClose)
	require.NoError(t, a.Close())
}
