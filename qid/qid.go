package qid

import (
	"fmt"
	"sync/atomic"
)

type (
	// QID identifies one query for the lifetime of the cluster: the node
	// that accepted it plus a per-node monotonic counter.
	QID struct {
		Node string `json:"node"`
		Seq  uint64 `json:"seq"`
	}

	// SubQID identifies one sub-query: its 1-based position in coverage
	// plan order plus the owning QID.
	SubQID struct {
		Index int `json:"index"`
		QID   QID `json:"qid"`
	}

	// Source mints QIDs for one node.
	Source struct {
		node string
		seq  uint64
	}
)

func NewSource(node string) *Source {
	return &Source{node: node}
}

func (s *Source) Next() QID {
	return QID{
		Node: s.node,
		Seq:  atomic.AddUint64(&s.seq, 1),
	}
}

func (q QID) String() string {
	return fmt.Sprintf("%s/%d", q.Node, q.Seq)
}

func (s SubQID) String() string {
	return fmt.Sprintf("%s#%d", s.QID, s.Index)
}
