package graph

import (
	"sort"

	"github.com/careerhunt/kg-engine/engine/domain"
)

// Snapshot is the JSON-serializable form of a Graph, written to the graph
// snapshot file after every mutation and after every rebuild.
type Snapshot struct {
	Nodes []SnapshotNode `json:"nodes"`
	Edges []SnapshotEdge `json:"edges"`
}

// SnapshotNode serializes one node.
type SnapshotNode struct {
	ID   string          `json:"id"`
	Type domain.Kind     `json:"type"`
	Meta domain.Metadata `json:"meta,omitempty"`
}

// SnapshotEdge serializes one undirected edge, stored once with A < B.
type SnapshotEdge struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Relation string `json:"relation,omitempty"`
}

// ToSnapshot captures the graph in a deterministic order.
func (g *Graph) ToSnapshot() Snapshot {
	snap := Snapshot{
		Nodes: make([]SnapshotNode, 0, len(g.nodes)),
		Edges: make([]SnapshotEdge, 0, g.edges),
	}
	for _, id := range g.IDs() {
		n := g.nodes[id.String()]
		snap.Nodes = append(snap.Nodes, SnapshotNode{ID: id.String(), Type: id.Kind, Meta: n.Meta})
	}
	for a, adj := range g.adj {
		for b, rel := range adj {
			if a < b {
				snap.Edges = append(snap.Edges, SnapshotEdge{A: a, B: b, Relation: rel})
			}
		}
	}
	sort.Slice(snap.Edges, func(i, j int) bool {
		if snap.Edges[i].A != snap.Edges[j].A {
			return snap.Edges[i].A < snap.Edges[j].A
		}
		return snap.Edges[i].B < snap.Edges[j].B
	})
	return snap
}

// FromSnapshot reconstructs a Graph. Edges referencing unknown nodes are
// dropped rather than failing the whole load.
func FromSnapshot(snap Snapshot) *Graph {
	g := New()
	for _, n := range snap.Nodes {
		id := domain.ParseID(n.ID)
		if n.Type != "" {
			id.Kind = n.Type
			id.Key = trimPrefix(n.ID, n.Type)
		}
		g.Add(id, n.Meta)
	}
	for _, e := range snap.Edges {
		g.addEdge(domain.ParseID(e.A), domain.ParseID(e.B), e.Relation)
	}
	return g
}

func trimPrefix(s string, k domain.Kind) string {
	prefix := string(k) + "_"
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
