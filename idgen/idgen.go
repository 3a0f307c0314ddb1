// Package idgen provides the ID generators used for memory handles and
// hardware channel ids.
package idgen

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ID is a unique identifier represented as a uint64.
type ID uint64

// Generator produces unique identifiers.
type Generator interface {
	Generate() ID
}

// New returns a sequential generator whose first emitted ID is "1". Zero is
// never emitted, so it can be used as "no handle".
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next uint64
}

func (g *sequentialGenerator) Generate() ID {
	return ID(atomic.AddUint64(&g.next, 1))
}

// ErrPoolExhausted is returned when every id of a Pool is in use.
var ErrPoolExhausted = errors.New("idgen: no free id")

// Pool hands out small integer ids in [0, size), always the lowest free one.
// Hardware channel ids are allocated this way since the engine indexes
// fixed-size tables with them.
type Pool struct {
	lock  sync.Mutex
	inUse []bool
}

// NewPool creates a pool of size ids.
func NewPool(size int) *Pool {
	return &Pool{inUse: make([]bool, size)}
}

// Acquire returns the lowest free id.
func (p *Pool) Acquire() (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for i, used := range p.inUse {
		if !used {
			p.inUse[i] = true
			return i, nil
		}
	}

	return -1, ErrPoolExhausted
}

// Release returns id to the pool. Releasing a free id panics.
func (p *Pool) Release(id int) {
	p.lock.Lock()
	defer p.lock.Unlock()

	if id < 0 || id >= len(p.inUse) || !p.inUse[id] {
		panic("idgen: releasing an id that is not in use")
	}

	p.inUse[id] = false
}

// InUse returns the number of ids currently handed out.
func (p *Pool) InUse() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	n := 0
	for _, used := range p.inUse {
		if used {
			n++
		}
	}

	return n
}
