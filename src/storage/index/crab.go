package index

import (
	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
)

// guardStack tracks the exclusively-latched path of a pessimistic descent:
// the header guard at the bottom, then node guards from the root down. When
// a node turns out to be safe, everything latched above it is released.
type guardStack struct {
	header *bufferpool.WriteGuard
	guards []*bufferpool.WriteGuard
}

func newGuardStack(header *bufferpool.WriteGuard) *guardStack {
	return &guardStack{header: header}
}

func (s *guardStack) Push(g *bufferpool.WriteGuard) {
	s.guards = append(s.guards, g)
}

// Pop detaches the deepest node guard. The caller owns dropping it.
func (s *guardStack) Pop() *bufferpool.WriteGuard {
	n := len(s.guards)
	assert.Assert(n > 0, "pop from an empty guard stack")

	g := s.guards[n-1]
	s.guards = s.guards[:n-1]

	return g
}

// TopNode peeks at the deepest retained node guard.
func (s *guardStack) TopNode() *bufferpool.WriteGuard {
	n := len(s.guards)
	assert.Assert(n > 0, "no node guards retained")

	return s.guards[n-1]
}

func (s *guardStack) NodeCount() int {
	return len(s.guards)
}

// OnlyHeader reports that no ancestors remain except the still-held header,
// i.e. the current node is the root.
func (s *guardStack) OnlyHeader() bool {
	return len(s.guards) == 0 && s.header != nil
}

func (s *guardStack) Header() *bufferpool.WriteGuard {
	assert.Assert(s.header != nil, "header guard already released")
	return s.header
}

func (s *guardStack) HasHeader() bool {
	return s.header != nil
}

// DropAncestors releases every retained latch. Called when the node about
// to be latched is known safe, so no structural change can reach above it.
func (s *guardStack) DropAncestors() {
	for _, g := range s.guards {
		g.Drop()
	}
	s.guards = s.guards[:0]

	if s.header != nil {
		s.header.Drop()
		s.header = nil
	}
}

// DropAll releases whatever is still held. Safe to call twice.
func (s *guardStack) DropAll() {
	s.DropAncestors()
}
