//go:build !integration

package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// fakeRedis is an in-memory RedisClient. Expiries are recorded, not enforced.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration

	Err error
}

var _ RedisClient = (*fakeRedis)(nil)

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: map[string]string{},
		hashes:  map[string]map[string]string{},
		ttls:    map[string]time.Duration{},
	}
}

func (f *fakeRedis) Ping(context.Context) error { return f.Err }

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.strings[key] = fmt.Sprint(value)
	f.ttls[key] = exp
	return nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, exp time.Duration) (bool, error) {
	if f.Err != nil {
		return false, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.strings[key]; ok {
		return false, nil
	}
	f.strings[key] = fmt.Sprint(value)
	f.ttls[key] = exp
	return true, nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.strings[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (f *fakeRedis) HSet(_ context.Context, key string, values map[string]interface{}) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for k, v := range values {
		if b, ok := v.([]byte); ok {
			h[k] = string(b)
			continue
		}
		h[k] = fmt.Sprint(v)
	}
	return nil
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) (map[string]string, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRedis) Incr(_ context.Context, key string) (int64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.strings[key], 10, 64)
	n++
	f.strings[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeRedis) Expire(_ context.Context, key string, exp time.Duration) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = exp
	return nil
}

func (f *fakeRedis) Persist(_ context.Context, key string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ttls, key)
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.strings, k)
		delete(f.hashes, k)
		delete(f.ttls, k)
	}
	return nil
}

// Eval understands only the compare-and-delete unlock script.
func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if script != luaUnlock || len(keys) != 1 || len(args) != 1 {
		return nil, errors.New("unsupported script")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.strings[keys[0]] == fmt.Sprint(args[0]) {
		delete(f.strings, keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func (f *fakeRedis) Close() error { return nil }
