// Package locks serializes work per key inside one process.
package locks

import (
	"context"
	"slices"
	"sync"
)

type slot struct {
	ch   chan struct{}
	refs int
}

// Keyed hands out one lock per key. Entries are dropped once nobody holds or waits for them.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// Acquire locks every key in sorted order so overlapping key sets cannot deadlock. The returned
// release function unlocks all of them and is safe to call more than once.
func (k *Keyed) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := k.lock(ctx, key); err != nil {
			k.unlockAll(held)
			return nil, err
		}
		held = append(held, key)
	}
	var once sync.Once
	return func() { once.Do(func() { k.unlockAll(held) }) }, nil
}

func (k *Keyed) lock(ctx context.Context, key string) error {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.drop(key, s)
		return ctx.Err()
	}
}

func (k *Keyed) unlockAll(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		k.mu.Lock()
		s := k.slots[keys[i]]
		k.mu.Unlock()
		if s == nil {
			continue
		}
		<-s.ch
		k.drop(keys[i], s)
	}
}

func (k *Keyed) drop(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
