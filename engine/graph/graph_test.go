package graph

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/careerhunt/kg-engine/engine/domain"
)

func TestAddIsIdempotent(t *testing.T) {
	g := New()
	if !g.Add(domain.JobID("1"), domain.Metadata{"title": "Backend Engineer"}) {
		t.Fatal("first add should report created")
	}
	if g.Add(domain.JobID("1"), domain.Metadata{"title": "Changed"}) {
		t.Fatal("second add should report exists")
	}
	n, _ := g.Node(domain.JobID("1"))
	if n.Meta["title"] != "Backend Engineer" {
		t.Fatal("re-add must not refresh metadata")
	}
}

func TestAddEdgeSetSemantics(t *testing.T) {
	g := New()
	g.Add(domain.JobID("1"), nil)
	g.Add(domain.SkillID("Go"), nil)

	g.AddEdge(domain.JobID("1"), domain.SkillID("Go"))
	g.AddEdge(domain.SkillID("Go"), domain.JobID("1"))
	g.AddRelation(domain.JobID("1"), domain.SkillID("Go"), RelRequiresSkill)

	if g.EdgeCount() != 1 {
		t.Fatalf("expected 1 edge, got %d", g.EdgeCount())
	}
}

func TestAddEdgeIgnoresMissingAndSelf(t *testing.T) {
	g := New()
	g.Add(domain.JobID("1"), nil)
	g.AddEdge(domain.JobID("1"), domain.SkillID("ghost"))
	g.AddEdge(domain.JobID("1"), domain.JobID("1"))
	if g.EdgeCount() != 0 {
		t.Fatalf("expected 0 edges, got %d", g.EdgeCount())
	}
}

func TestNeighborsSorted(t *testing.T) {
	g := New()
	g.Add(domain.JobID("1"), nil)
	for _, s := range []string{"SQL", "Go", "Python"} {
		g.Add(domain.SkillID(s), nil)
		g.AddEdge(domain.JobID("1"), domain.SkillID(s))
	}
	got := g.SkillNeighbors(domain.JobID("1"))
	want := []string{"Go", "Python", "SQL"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SkillNeighbors = %v, want %v", got, want)
	}
}

func TestShortestPathLength(t *testing.T) {
	g := New()
	job := domain.JobID("1")
	comp := domain.CompanyID("TechCorp")
	skill := domain.SkillID("Go")
	island := domain.SkillID("Cobol")
	g.Add(job, nil)
	g.Add(comp, nil)
	g.Add(skill, nil)
	g.Add(island, nil)
	g.AddRelation(job, comp, RelPostedBy)
	g.AddRelation(job, skill, RelRequiresSkill)

	tests := []struct {
		a, b      domain.NodeID
		length    int
		connected bool
	}{
		{job, job, 0, true},
		{job, skill, 1, true},
		{skill, comp, 2, true},
		{skill, island, 0, false},
		{job, domain.SkillID("absent"), 0, false},
	}
	for _, tt := range tests {
		got, ok := g.ShortestPathLength(tt.a, tt.b)
		if ok != tt.connected || got != tt.length {
			t.Errorf("ShortestPathLength(%s,%s) = %d,%v want %d,%v",
				tt.a, tt.b, got, ok, tt.length, tt.connected)
		}
	}
}

func TestCountByKind(t *testing.T) {
	g := New()
	g.Add(domain.JobID("1"), nil)
	g.Add(domain.SkillID("Go"), nil)
	g.Add(domain.SkillID("SQL"), nil)
	counts := g.CountByKind()
	if counts[domain.KindJob] != 1 || counts[domain.KindSkill] != 2 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := New()
	g.Add(domain.JobID("1"), domain.Metadata{"title": "Data Engineer", "company": "TechCorp"})
	g.Add(domain.CompanyID("TechCorp"), domain.Metadata{"name": "TechCorp"})
	g.Add(domain.SkillID("Python"), nil)
	g.AddRelation(domain.JobID("1"), domain.CompanyID("TechCorp"), RelPostedBy)
	g.AddEdge(domain.JobID("1"), domain.SkillID("Python"))

	data, err := json.Marshal(g.ToSnapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	g2 := FromSnapshot(snap)

	if g2.NodeCount() != 3 || g2.EdgeCount() != 2 {
		t.Fatalf("restored graph has %d nodes / %d edges", g2.NodeCount(), g2.EdgeCount())
	}
	n, ok := g2.Node(domain.JobID("1"))
	if !ok || n.Meta["title"] != "Data Engineer" {
		t.Fatalf("restored node mismatch: %+v", n)
	}
	if length, ok := g2.ShortestPathLength(domain.SkillID("Python"), domain.CompanyID("TechCorp")); !ok || length != 2 {
		t.Fatalf("restored path = %d,%v", length, ok)
	}
	// The restored snapshot must be byte-for-byte identical to the original.
	data2, _ := json.Marshal(g2.ToSnapshot())
	if string(data) != string(data2) {
		t.Fatal("snapshot not stable across round trip")
	}
}
