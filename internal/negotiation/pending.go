package negotiation

import (
	"github.com/1ureka/rtcall/internal/signaling"
)

type candidateKey struct {
	mid  string
	idx  uint16
	line string
}

// candidateSet holds remote candidates that arrived before a remote
// description was applied, in receipt order, and remembers every candidate
// it has seen so relay duplicates are applied at most once.
type candidateSet struct {
	pending []signaling.Candidate
	seen    map[candidateKey]struct{}
}

func newCandidateSet() *candidateSet {
	return &candidateSet{seen: make(map[candidateKey]struct{})}
}

// admit records c and reports whether it is new.
func (s *candidateSet) admit(c signaling.Candidate) bool {
	k := candidateKey{mid: c.SDPMid, idx: c.SDPMLineIndex, line: c.Candidate}
	if _, dup := s.seen[k]; dup {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

func (s *candidateSet) buffer(c signaling.Candidate) {
	s.pending = append(s.pending, c)
}

// drain empties the buffer and returns its contents in receipt order.
func (s *candidateSet) drain() []signaling.Candidate {
	out := s.pending
	s.pending = nil
	return out
}

func (s *candidateSet) len() int { return len(s.pending) }
