package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator hands out predictable identifiers ("res-1", "res-2", ...) so
// tests can name the users, slots and reservations a service creates.
type IDGenerator struct {
	prefix string
	issued atomic.Uint64
}

func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next identifier. Safe for concurrent bookings.
func (g *IDGenerator) Next() string {
	n := g.issued.Add(1)
	return g.prefix + "-" + strconv.FormatUint(n, 10)
}

// NextFunc adapts the generator to the func() string services expect.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued reports how many identifiers have been handed out.
func (g *IDGenerator) Issued() uint64 {
	return g.issued.Load()
}

// Reset restarts the sequence at 1.
func (g *IDGenerator) Reset() {
	g.issued.Store(0)
}
