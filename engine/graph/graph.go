// Package graph implements the typed-node, undirected-edge knowledge graph.
// It is a plain in-process data structure: the consistency unit in engine/kg
// owns all locking and persistence, and replaces whole Graph values during a
// full rebuild.
package graph

import (
	"sort"

	"github.com/careerhunt/kg-engine/engine/domain"
)

// Relation labels attached by the canonical-rebuild path. Edges created by
// the online path carry no label.
const (
	RelPostedBy      = "POSTED_BY"
	RelRequiresSkill = "REQUIRES_SKILL"
)

// Node is a graph node: a typed identifier plus open metadata.
type Node struct {
	ID   domain.NodeID
	Meta domain.Metadata
}

// Graph holds typed nodes and undirected, set-semantics adjacency.
type Graph struct {
	nodes map[string]Node
	adj   map[string]map[string]string // id -> neighbor id -> relation ("" for unlabeled)
	edges int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]Node),
		adj:   make(map[string]map[string]string),
	}
}

// Has reports whether id exists.
func (g *Graph) Has(id domain.NodeID) bool {
	_, ok := g.nodes[id.String()]
	return ok
}

// Add inserts a node. Re-adding an existing id is a no-op that returns false;
// metadata and edges of the existing node are left untouched.
func (g *Graph) Add(id domain.NodeID, meta domain.Metadata) bool {
	key := id.String()
	if _, ok := g.nodes[key]; ok {
		return false
	}
	g.nodes[key] = Node{ID: id, Meta: meta}
	g.adj[key] = make(map[string]string)
	return true
}

// AddEdge links a and b with an unlabeled undirected edge. Idempotent; a
// repeated edge is a no-op, even when the existing edge carries a relation.
func (g *Graph) AddEdge(a, b domain.NodeID) {
	g.addEdge(a, b, "")
}

// AddRelation links a and b with a labeled undirected edge.
func (g *Graph) AddRelation(a, b domain.NodeID, relation string) {
	g.addEdge(a, b, relation)
}

func (g *Graph) addEdge(a, b domain.NodeID, relation string) {
	ka, kb := a.String(), b.String()
	if _, ok := g.nodes[ka]; !ok {
		return
	}
	if _, ok := g.nodes[kb]; !ok {
		return
	}
	if ka == kb {
		return
	}
	if _, ok := g.adj[ka][kb]; ok {
		return
	}
	g.adj[ka][kb] = relation
	g.adj[kb][ka] = relation
	g.edges++
}

// Node returns the node for id.
func (g *Graph) Node(id domain.NodeID) (Node, bool) {
	n, ok := g.nodes[id.String()]
	return n, ok
}

// Neighbors returns the adjacent node ids, sorted for deterministic output.
func (g *Graph) Neighbors(id domain.NodeID) []domain.NodeID {
	adj, ok := g.adj[id.String()]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(adj))
	for k := range adj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.NodeID, len(keys))
	for i, k := range keys {
		out[i] = g.nodes[k].ID
	}
	return out
}

// SkillNeighbors returns the skill names adjacent to id (prefix stripped).
func (g *Graph) SkillNeighbors(id domain.NodeID) []string {
	var out []string
	for _, n := range g.Neighbors(id) {
		if n.Kind == domain.KindSkill {
			out = append(out, n.Key)
		}
	}
	return out
}

// ShortestPathLength returns the minimum edge count between a and b via BFS,
// and false if the nodes are disconnected or either is absent.
func (g *Graph) ShortestPathLength(a, b domain.NodeID) (int, bool) {
	ka, kb := a.String(), b.String()
	if _, ok := g.nodes[ka]; !ok {
		return 0, false
	}
	if _, ok := g.nodes[kb]; !ok {
		return 0, false
	}
	if ka == kb {
		return 0, true
	}

	dist := map[string]int{ka: 0}
	queue := []string{ka}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for next := range g.adj[curr] {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[curr] + 1
			if next == kb {
				return dist[next], true
			}
			queue = append(queue, next)
		}
	}
	return 0, false
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int { return g.edges }

// CountByKind returns node counts per kind.
func (g *Graph) CountByKind() map[domain.Kind]int {
	out := make(map[domain.Kind]int)
	for _, n := range g.nodes {
		out[n.ID.Kind]++
	}
	return out
}

// IDs returns every node id, sorted.
func (g *Graph) IDs() []domain.NodeID {
	keys := make([]string, 0, len(g.nodes))
	for k := range g.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]domain.NodeID, len(keys))
	for i, k := range keys {
		out[i] = g.nodes[k].ID
	}
	return out
}
