package availability

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisIndex keeps the booked-date index in one Redis hash so it outlives
// the server process and answers reads without touching the ledger.  Each
// field is a date key and each value is "<0|1>:<version>".  The version of
// the last Reset is kept under "<key>:floor".  Version checks run inside
// Lua scripts so that a compare-and-set on a date is atomic on the server.
//
// A hash belongs to one server process: ledgers of different processes
// number their commits independently.
type RedisIndex struct {
	rdb   *redis.Client
	key   string
	floor string
}

// NewRedisIndex returns an index stored under key.
func NewRedisIndex(rdb *redis.Client, key string) *RedisIndex {
	if key == "" {
		key = "campsite:availability"
	}
	return &RedisIndex{rdb: rdb, key: key, floor: key + ":floor"}
}

// applyScript sets each (date, state) pair when the version is above the
// floor and the stored version is older.
// KEYS = hash, floor.  ARGV = version, date1, state1, date2, state2, ...
var applyScript = redis.NewScript(`
	local key = KEYS[1]
	local version = tonumber(ARGV[1])
	local floor = tonumber(redis.call('GET', KEYS[2]) or '0') or 0
	if version <= floor then
		return 0
	end
	local applied = 0
	for i = 2, #ARGV, 2 do
		local date = ARGV[i]
		local cur = redis.call('HGET', key, date)
		local cur_version = 0
		if cur then
			cur_version = tonumber(string.match(cur, ':(%d+)$')) or 0
		end
		if version > cur_version then
			redis.call('HSET', key, date, ARGV[i + 1] .. ':' .. ARGV[1])
			applied = applied + 1
		end
	end
	return applied
`)

// resetScript replaces the hash with a snapshot and moves the floor to its
// version.  KEYS = hash, floor.  ARGV = version, booked dates...
var resetScript = redis.NewScript(`
	local key = KEYS[1]
	redis.call('DEL', key)
	for i = 2, #ARGV do
		redis.call('HSET', key, ARGV[i], '1:' .. ARGV[1])
	end
	redis.call('SET', KEYS[2], ARGV[1])
	return #ARGV - 1
`)

// pruneScript deletes every field lexically before ARGV[1].
var pruneScript = redis.NewScript(`
	local key = KEYS[1]
	local removed = 0
	local fields = redis.call('HKEYS', key)
	for _, date in ipairs(fields) do
		if date < ARGV[1] then
			redis.call('HDEL', key, date)
			removed = removed + 1
		end
	end
	return removed
`)

func (r *RedisIndex) Apply(ctx context.Context, version uint64, free, booked []string) error {
	states := desired(free, booked)
	if len(states) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 1+2*len(states))
	args = append(args, strconv.FormatUint(version, 10))
	for _, s := range states {
		state := "0"
		if s.booked {
			state = "1"
		}
		args = append(args, s.date, state)
	}
	if err := applyScript.Run(ctx, r.rdb, []string{r.key, r.floor}, args...).Err(); err != nil {
		return fmt.Errorf("redis apply: %w", err)
	}
	return nil
}

func (r *RedisIndex) Reset(ctx context.Context, version uint64, booked []string) error {
	args := make([]interface{}, 0, 1+len(booked))
	args = append(args, strconv.FormatUint(version, 10))
	for _, d := range booked {
		args = append(args, d)
	}
	if err := resetScript.Run(ctx, r.rdb, []string{r.key, r.floor}, args...).Err(); err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	return nil
}

func (r *RedisIndex) Booked(ctx context.Context, dates []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(dates) == 0 {
		return out, nil
	}
	vals, err := r.rdb.HMGet(ctx, r.key, dates...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "1:") {
			out[dates[i]] = true
		}
	}
	return out, nil
}

func (r *RedisIndex) Prune(ctx context.Context, before string) (int, error) {
	n, err := pruneScript.Run(ctx, r.rdb, []string{r.key}, before).Int()
	if err != nil {
		return 0, fmt.Errorf("redis prune: %w", err)
	}
	return n, nil
}
