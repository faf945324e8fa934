package scheduler

import (
	"context"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/pkg/exception"
)

const defaultPrefix = "calc:triggers"

// RedisStore keeps triggers in a hash keyed by id, indexed by due height and
// due time in two sorted sets.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore wraps client. An empty prefix uses "calc:triggers".
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) hashKey() string   { return s.prefix }
func (s *RedisStore) heightKey() string { return s.prefix + ":height" }
func (s *RedisStore) timeKey() string   { return s.prefix + ":time" }

// Put stores t unless a trigger with the same id exists. It reports whether
// the trigger was new.
func (s *RedisStore) Put(ctx context.Context, t Trigger) (bool, error) {
	data, err := sonic.Marshal(t)
	if err != nil {
		return false, errors.Wrap(err, "encode trigger")
	}
	created, err := s.client.HSetNX(ctx, s.hashKey(), t.ID, data).Result()
	if err != nil {
		return false, errors.Wrapf(err, "store trigger %s", t.ID)
	}
	if !created {
		return false, nil
	}

	var index *redis.IntCmd
	switch c := t.Create.Condition; {
	case c.BlocksCompleted != nil:
		index = s.client.ZAdd(ctx, s.heightKey(), redis.Z{Score: float64(*c.BlocksCompleted), Member: t.ID})
	case c.TimestampElapsed != nil:
		index = s.client.ZAdd(ctx, s.timeKey(), redis.Z{Score: float64(c.TimestampElapsed.Unix()), Member: t.ID})
	default:
		return true, ErrEmptyCondition
	}
	if err := index.Err(); err != nil {
		return true, errors.Wrapf(err, "index trigger %s", t.ID)
	}
	return true, nil
}

// Get loads a trigger by id.
func (s *RedisStore) Get(ctx context.Context, id string) (Trigger, error) {
	raw, err := s.client.HGet(ctx, s.hashKey(), id).Result()
	if err == redis.Nil {
		return Trigger{}, errors.Wrapf(exception.ErrNotFound, "trigger %s", id)
	}
	if err != nil {
		return Trigger{}, errors.Wrapf(err, "load trigger %s", id)
	}
	var t Trigger
	if err := sonic.UnmarshalString(raw, &t); err != nil {
		return Trigger{}, errors.Wrapf(err, "decode trigger %s", id)
	}
	return t, nil
}

// Due returns every trigger whose condition env satisfies.
func (s *RedisStore) Due(ctx context.Context, env ledger.Env) ([]Trigger, error) {
	byHeight, err := s.client.ZRangeByScore(ctx, s.heightKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatUint(env.Height, 10),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "scan height index")
	}
	byTime, err := s.client.ZRangeByScore(ctx, s.timeKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(env.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "scan time index")
	}

	out := make([]Trigger, 0, len(byHeight)+len(byTime))
	for _, id := range append(byHeight, byTime...) {
		t, err := s.Get(ctx, id)
		if errors.Is(err, exception.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if t.Create.Condition.Satisfied(env) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Remove deletes a fired trigger.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.hashKey(), id).Err(); err != nil {
		return errors.Wrapf(err, "delete trigger %s", id)
	}
	if err := s.client.ZRem(ctx, s.heightKey(), id).Err(); err != nil {
		return errors.Wrapf(err, "unindex trigger %s", id)
	}
	if err := s.client.ZRem(ctx, s.timeKey(), id).Err(); err != nil {
		return errors.Wrapf(err, "unindex trigger %s", id)
	}
	return nil
}
