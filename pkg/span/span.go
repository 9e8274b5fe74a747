// Package span aligns two token sequences and extracts the index spans
// they share, using the longest-matching-block decomposition that produces
// minimal edit scripts (equal, replace, insert, delete).
package span

import (
	"fmt"
	"sort"

	"github.com/mchmarny/biasprobe/pkg/bias"
)

const (
	// element popularity pruning only starts at this length of the second sequence
	autoJunkMinLen = 200
)

// OpTag labels one opcode of an edit script.
type OpTag string

const (
	OpEqual   OpTag = "equal"
	OpReplace OpTag = "replace"
	OpInsert  OpTag = "insert"
	OpDelete  OpTag = "delete"
)

// Match is a run of Size elements with a[A:A+Size] == b[B:B+Size].
type Match struct {
	A    int `json:"a"`
	B    int `json:"b"`
	Size int `json:"size"`
}

// Opcode turns a[I1:I2] into b[J1:J2].
type Opcode struct {
	Tag OpTag `json:"tag"`
	I1  int   `json:"i1"`
	I2  int   `json:"i2"`
	J1  int   `json:"j1"`
	J2  int   `json:"j2"`
}

// Template holds the positions of tokens shared by two sequences, in
// left-to-right correspondence.
type Template struct {
	Seq1 []int `json:"seq1"`
	Seq2 []int `json:"seq2"`
}

// Len returns the number of aligned positions.
func (t Template) Len() int {
	return len(t.Seq1)
}

// Maskable returns the number of interior positions, excluding the first
// and last entries which hold the sequence boundary tokens.
func (t Template) Maskable() int {
	if n := t.Len() - 2; n > 0 {
		return n
	}
	return 0
}

// Matcher computes matching blocks between two sequences.
// With AutoJunk set, elements of b that occur more than 1% of the time
// (plus one) are not used as match anchors once b has 200 or more elements.
type Matcher[T comparable] struct {
	AutoJunk bool

	a, b []T
	b2j  map[T][]int
}

// NewMatcher indexes b for matching against a.
func NewMatcher[T comparable](a, b []T, autoJunk bool) *Matcher[T] {
	m := &Matcher[T]{
		AutoJunk: autoJunk,
		a:        a,
		b:        b,
		b2j:      make(map[T][]int),
	}
	for j, elt := range b {
		m.b2j[elt] = append(m.b2j[elt], j)
	}
	if autoJunk && len(b) >= autoJunkMinLen {
		ntest := len(b)/100 + 1
		for elt, idx := range m.b2j {
			if len(idx) > ntest {
				delete(m.b2j, elt)
			}
		}
	}
	return m
}

// longest finds the longest matching block in a[alo:ahi] and b[blo:bhi].
// Ties resolve to the block starting earliest in a, then earliest in b.
func (m *Matcher[T]) longest(alo, ahi, blo, bhi int) Match {
	best := Match{A: alo, B: blo}
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > best.Size {
				best = Match{A: i - k + 1, B: j - k + 1, Size: k}
			}
		}
		j2len = next
	}

	// extend across elements pruned as popular
	for best.A > alo && best.B > blo && m.a[best.A-1] == m.b[best.B-1] {
		best.A--
		best.B--
		best.Size++
	}
	for best.A+best.Size < ahi && best.B+best.Size < bhi && m.a[best.A+best.Size] == m.b[best.B+best.Size] {
		best.Size++
	}
	return best
}

// MatchingBlocks returns the non-adjacent matching blocks in increasing
// order, terminated by the zero-size block {len(a), len(b), 0}.
func (m *Matcher[T]) MatchingBlocks() []Match {
	type window struct{ alo, ahi, blo, bhi int }

	queue := []window{{0, len(m.a), 0, len(m.b)}}
	blocks := make([]Match, 0)
	for len(queue) > 0 {
		w := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		x := m.longest(w.alo, w.ahi, w.blo, w.bhi)
		if x.Size == 0 {
			continue
		}
		blocks = append(blocks, x)
		if w.alo < x.A && w.blo < x.B {
			queue = append(queue, window{w.alo, x.A, w.blo, x.B})
		}
		if x.A+x.Size < w.ahi && x.B+x.Size < w.bhi {
			queue = append(queue, window{x.A + x.Size, w.ahi, x.B + x.Size, w.bhi})
		}
	}

	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].A != blocks[j].A {
			return blocks[i].A < blocks[j].A
		}
		return blocks[i].B < blocks[j].B
	})

	merged := make([]Match, 0, len(blocks)+1)
	var cur Match
	for _, x := range blocks {
		if cur.A+cur.Size == x.A && cur.B+cur.Size == x.B {
			cur.Size += x.Size
			continue
		}
		if cur.Size > 0 {
			merged = append(merged, cur)
		}
		cur = x
	}
	if cur.Size > 0 {
		merged = append(merged, cur)
	}

	return append(merged, Match{A: len(m.a), B: len(m.b)})
}

// Opcodes describes how to turn a into b.
func (m *Matcher[T]) Opcodes() []Opcode {
	var ops []Opcode
	i, j := 0, 0
	for _, x := range m.MatchingBlocks() {
		var tag OpTag
		switch {
		case i < x.A && j < x.B:
			tag = OpReplace
		case i < x.A:
			tag = OpDelete
		case j < x.B:
			tag = OpInsert
		}
		if tag != "" {
			ops = append(ops, Opcode{Tag: tag, I1: i, I2: x.A, J1: j, J2: x.B})
		}
		i, j = x.A+x.Size, x.B+x.Size
		if x.Size > 0 {
			ops = append(ops, Opcode{Tag: OpEqual, I1: x.A, I2: i, J1: x.B, J2: j})
		}
	}
	return ops
}

// Template collects the positions covered by equal opcodes.
func (m *Matcher[T]) Template() (Template, error) {
	t := Template{Seq1: make([]int, 0, len(m.a)), Seq2: make([]int, 0, len(m.b))}
	for _, op := range m.Opcodes() {
		if op.Tag != OpEqual {
			continue
		}
		for x := op.I1; x < op.I2; x++ {
			t.Seq1 = append(t.Seq1, x)
		}
		for x := op.J1; x < op.J2; x++ {
			t.Seq2 = append(t.Seq2, x)
		}
	}
	if len(t.Seq1) != len(t.Seq2) {
		return Template{}, fmt.Errorf("%w: aligned spans have %d and %d positions",
			bias.ErrStructuralMismatch, len(t.Seq1), len(t.Seq2))
	}
	return t, nil
}

// Opcodes returns the edit script between a and b with popularity pruning.
func Opcodes[T comparable](a, b []T) []Opcode {
	return NewMatcher(a, b, true).Opcodes()
}

// MatchingBlocks returns the matching blocks between a and b with
// popularity pruning.
func MatchingBlocks[T comparable](a, b []T) []Match {
	return NewMatcher(a, b, true).MatchingBlocks()
}

// Align returns the shared-token template of a and b. Popular tokens of
// sequences of 200 or more elements are not used as anchors.
func Align[T comparable](a, b []T) (Template, error) {
	return NewMatcher(a, b, true).Template()
}
