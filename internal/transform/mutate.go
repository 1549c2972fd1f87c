package transform

import "fmt"

// Position describes where within a segment a stage should land.
type Position struct {
	kind   positionKind
	index  int
	anchor string
}

type positionKind int

const (
	posFront positionKind = iota
	posBack
	posIndex
	posBefore
	posAfter
)

// Front places the stage at the start of the segment.
func Front() Position { return Position{kind: posFront} }

// Back places the stage at the end of the segment.
func Back() Position { return Position{kind: posBack} }

// Index places the stage at the given 0-based index. Valid iff n <=
// segment length at resolution time.
func Index(n int) Position { return Position{kind: posIndex, index: n} }

// Before places the stage immediately before the named anchor, which must
// exist in the target segment.
func Before(key string) Position { return Position{kind: posBefore, anchor: key} }

// After places the stage immediately after the named anchor, which must
// exist in the target segment.
func After(key string) Position { return Position{kind: posAfter, anchor: key} }

// Mutation is one graph edit operation.
type Mutation interface {
	apply(g *Graph) error
}

// Insert adds a new stage to a segment at the given position. The stage's
// key must not already exist anywhere in the graph.
type Insert struct {
	Segment  Segment
	Position Position
	Stage    Stage
}

// Replace swaps the stage with the given key for a new one, keeping its
// position. The new key may equal the replaced key but must not collide
// with any other existing key.
type Replace struct {
	Key   string
	Stage Stage
}

// Remove deletes the stage with the given key from wherever it lives.
type Remove struct {
	Key string
}

// Move relocates an existing stage to a new segment/position. Self-relative
// anchors (Before(key) or After(key) where key == Key) are rejected.
type Move struct {
	Key      string
	Segment  Segment
	Position Position
}

// Apply runs a sequence of mutations against the graph. Mutations are
// applied in order; the first error aborts the whole batch and leaves the
// graph as it was after the last successfully applied mutation (mutations
// already applied are not rolled back — callers wanting all-or-nothing
// semantics should operate on a cloned graph and swap it in atomically on
// success).
func (g *Graph) Apply(mutations ...Mutation) error {
	for i, m := range mutations {
		if err := m.apply(g); err != nil {
			return fmt.Errorf("transform: mutation %d: %w", i, err)
		}
	}
	return nil
}

func (m Insert) apply(g *Graph) error {
	if m.Stage == nil || m.Stage.Key() == "" {
		return ErrEmptyKey
	}
	if g.keyExists(m.Stage.Key()) {
		return fmt.Errorf("transform: insert: key %q already exists", m.Stage.Key())
	}
	idx, err := resolveInsertIndex(g, m.Segment, m.Position)
	if err != nil {
		return err
	}
	g.segments[m.Segment] = insertAt(g.segments[m.Segment], idx, m.Stage)
	return nil
}

func (m Replace) apply(g *Graph) error {
	if m.Stage == nil || m.Stage.Key() == "" {
		return ErrEmptyKey
	}
	_, seg, ok := g.Find(m.Key)
	if !ok {
		return fmt.Errorf("transform: replace: key %q not found", m.Key)
	}
	if m.Stage.Key() != m.Key && g.keyExists(m.Stage.Key()) {
		return fmt.Errorf("transform: replace: new key %q collides with an existing stage", m.Stage.Key())
	}
	idx, _ := g.indexOf(seg, m.Key)
	g.segments[seg][idx] = m.Stage
	return nil
}

func (m Remove) apply(g *Graph) error {
	_, seg, ok := g.Find(m.Key)
	if !ok {
		return fmt.Errorf("transform: remove: key %q not found", m.Key)
	}
	idx, _ := g.indexOf(seg, m.Key)
	g.segments[seg] = removeAt(g.segments[seg], idx)
	return nil
}

func (m Move) apply(g *Graph) error {
	_, fromSeg, ok := g.Find(m.Key)
	if !ok {
		return fmt.Errorf("transform: move: key %q not found", m.Key)
	}
	if (m.Position.kind == posBefore || m.Position.kind == posAfter) && m.Position.anchor == m.Key {
		return fmt.Errorf("transform: move: self-relative anchor %q is not allowed", m.Key)
	}

	srcIdx, _ := g.indexOf(fromSeg, m.Key)
	st := g.segments[fromSeg][srcIdx]

	if fromSeg == m.Segment {
		// Compute the insert index on the pre-removal view, then adjust for
		// the shift caused by removing the source element.
		insertIdx, err := resolveInsertIndex(g, m.Segment, m.Position)
		if err != nil {
			return err
		}
		g.segments[fromSeg] = removeAt(g.segments[fromSeg], srcIdx)
		if srcIdx < insertIdx {
			insertIdx--
		}
		g.segments[m.Segment] = insertAt(g.segments[m.Segment], insertIdx, st)
		return nil
	}

	insertIdx, err := resolveInsertIndex(g, m.Segment, m.Position)
	if err != nil {
		return err
	}
	g.segments[fromSeg] = removeAt(g.segments[fromSeg], srcIdx)
	g.segments[m.Segment] = insertAt(g.segments[m.Segment], insertIdx, st)
	return nil
}

// resolveInsertIndex turns a Position into a concrete 0-based index within
// the target segment, as it stands before any mutation this call is part of
// has touched it.
func resolveInsertIndex(g *Graph, seg Segment, pos Position) (int, error) {
	stages := g.segments[seg]
	switch pos.kind {
	case posFront:
		return 0, nil
	case posBack:
		return len(stages), nil
	case posIndex:
		if pos.index < 0 || pos.index > len(stages) {
			return 0, fmt.Errorf("transform: index %d out of range [0,%d]", pos.index, len(stages))
		}
		return pos.index, nil
	case posBefore, posAfter:
		idx, ok := indexInSlice(stages, pos.anchor)
		if !ok {
			return 0, fmt.Errorf("transform: anchor %q not found in segment %s", pos.anchor, seg)
		}
		if pos.kind == posBefore {
			return idx, nil
		}
		return idx + 1, nil
	default:
		return 0, fmt.Errorf("transform: unknown position kind")
	}
}

func indexInSlice(stages []Stage, key string) (int, bool) {
	for i, st := range stages {
		if st.Key() == key {
			return i, true
		}
	}
	return 0, false
}

func insertAt(stages []Stage, idx int, st Stage) []Stage {
	out := make([]Stage, 0, len(stages)+1)
	out = append(out, stages[:idx]...)
	out = append(out, st)
	out = append(out, stages[idx:]...)
	return out
}

func removeAt(stages []Stage, idx int) []Stage {
	out := make([]Stage, 0, len(stages)-1)
	out = append(out, stages[:idx]...)
	out = append(out, stages[idx+1:]...)
	return out
}
