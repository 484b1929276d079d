// Package model defines the data shapes shared by the graph, planner,
// robot-state, and stats components: NodeRef, Node, Robot, and the status
// enumerations.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeRef is either a bare node id ("7") or a sub-position ("7-3") with
// Sub in 0..4. Modelled as a sum type rather than ad-hoc string parsing
// scattered through the codebase; Base/Sub convert at ingress/egress only
// (parse once, carry the struct everywhere).
type NodeRef struct {
	Node int
	Sub  int // 0 when the ref is a bare node id
	hasSub bool
}

// NewBaseRef builds a bare-node NodeRef ("7").
func NewBaseRef(node int) NodeRef {
	return NodeRef{Node: node}
}

// NewSubRef builds a sub-position NodeRef ("7-3").
func NewSubRef(node, sub int) NodeRef {
	return NodeRef{Node: node, Sub: sub, hasSub: true}
}

// HasSub reports whether this ref carries an explicit sub-position.
func (r NodeRef) HasSub() bool {
	return r.hasSub
}

// ParseNodeRef parses "7" or "7-3" into a NodeRef. Sub-positions outside
// 0..4 are accepted here (callers validate range where it matters); a
// malformed string returns an error so bus handlers can log and drop it.
func ParseNodeRef(s string) (NodeRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NodeRef{}, fmt.Errorf("%w: empty node ref", errMalformed)
	}
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		nodePart, subPart := s[:idx], s[idx+1:]
		node, err := strconv.Atoi(nodePart)
		if err != nil {
			return NodeRef{}, fmt.Errorf("%w: bad node id %q", errMalformed, nodePart)
		}
		sub, err := strconv.Atoi(subPart)
		if err != nil {
			return NodeRef{}, fmt.Errorf("%w: bad sub-position %q", errMalformed, subPart)
		}
		return NewSubRef(node, sub), nil
	}
	node, err := strconv.Atoi(s)
	if err != nil {
		return NodeRef{}, fmt.Errorf("%w: bad node id %q", errMalformed, s)
	}
	return NewBaseRef(node), nil
}

// String renders the NodeRef back to its wire form.
func (r NodeRef) String() string {
	if r.hasSub {
		return fmt.Sprintf("%d-%d", r.Node, r.Sub)
	}
	return strconv.Itoa(r.Node)
}

// MarshalText encodes the NodeRef in its wire form, so JSON carries "7"
// or "7-3" rather than the struct fields.
func (r NodeRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes the wire form via ParseNodeRef.
func (r *NodeRef) UnmarshalText(b []byte) error {
	ref, err := ParseNodeRef(string(b))
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// BaseID returns the underlying node id regardless of sub-position.
func (r NodeRef) BaseID() int {
	return r.Node
}

// Equal compares two NodeRefs for exact equality, including sub-position.
func (r NodeRef) Equal(other NodeRef) bool {
	return r.Node == other.Node && r.Sub == other.Sub && r.hasSub == other.hasSub
}

// SameBase reports whether two NodeRefs refer to the same base node,
// ignoring sub-position.
func (r NodeRef) SameBase(other NodeRef) bool {
	return r.Node == other.Node
}
