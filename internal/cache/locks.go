package cache

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 256

// stripedLock serializes writers of the same physical record while letting
// unrelated records proceed in parallel. Two ids may share a stripe.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLock) lock(namespace, id string) (unlock func()) {
	h := fnv.New32a()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(id))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
