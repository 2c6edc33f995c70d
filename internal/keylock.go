package internal

import (
	"hash/fnv"
	"sync"
)

// KeyLock serializes work per key over a fixed set of mutex stripes. Two
// keys may share a stripe; one key always maps to the same stripe.
type KeyLock struct {
	stripes []sync.Mutex
}

// NewKeyLock returns a lock with n stripes (at least one).
func NewKeyLock(n int) *KeyLock {
	if n < 1 {
		n = 1
	}
	return &KeyLock{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (k *KeyLock) Lock(key string) (unlock func()) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m.Unlock
}
