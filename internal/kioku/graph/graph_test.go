package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Kioku/internal/kioku/graph"
	"github.com/bdobrica/Kioku/internal/kioku/store"
)

func newBackend(t *testing.T) *store.Dir {
	t.Helper()
	b, err := store.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	if err := graph.Init(context.Background(), b); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return b
}

func openGraph(t *testing.T, b store.Backend) *graph.Graph {
	t.Helper()
	g, err := graph.Open(context.Background(), b, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func loadDocument(t *testing.T, b store.Backend) graph.Document {
	t.Helper()
	var doc graph.Document
	if err := store.Load(context.Background(), b, store.KeyConnections, store.Schema(store.KeyConnections), &doc); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return doc
}

func TestOpen_MissingDocumentFails(t *testing.T) {
	b, err := store.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	if _, err := graph.Open(context.Background(), b, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConnect_FotoAplikacja(t *testing.T) {
	b := newBackend(t)
	g := openGraph(t, b)

	res, err := g.Connect(context.Background(), []string{"foto", "aplikacja"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if res.Created != 1 || res.Incremented != 0 {
		t.Errorf("result = %+v, want 1 created", res)
	}

	want := graph.Document{
		Nodes: []graph.Node{},
		Edges: []graph.Edge{{Source: "foto", Target: "aplikacja", Weight: 1}},
	}
	if diff := cmp.Diff(want, loadDocument(t, b)); diff != "" {
		t.Errorf("persisted graph mismatch (-want +got):\n%s", diff)
	}
}

func TestConnect_RepeatOnlyIncrements(t *testing.T) {
	ctx := context.Background()
	g := openGraph(t, newBackend(t))
	topics := []string{"kot", "pies", "kot", "pies"}

	first, err := g.Connect(ctx, topics)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	// kot→pies, pies→kot are new; the second kot→pies increments.
	if first.Created != 2 || first.Incremented != 1 {
		t.Errorf("first = %+v, want 2 created / 1 incremented", first)
	}

	second, err := g.Connect(ctx, topics)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if second.Created != 0 || second.Incremented != 3 {
		t.Errorf("second = %+v, want 0 created / 3 incremented", second)
	}

	doc, err := g.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	want := []graph.Edge{
		{Source: "kot", Target: "pies", Weight: 4},
		{Source: "pies", Target: "kot", Weight: 2},
	}
	if diff := cmp.Diff(want, doc.Edges); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestConnect_DirectionMatters(t *testing.T) {
	ctx := context.Background()
	g := openGraph(t, newBackend(t))

	if _, err := g.Connect(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := g.Connect(ctx, []string{"b", "a"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	doc, _ := g.Snapshot(ctx)
	if len(doc.Edges) != 2 {
		t.Fatalf("expected two directed edges, got %v", doc.Edges)
	}
}

func TestConnect_FewerThanTwoTopicsIsNoop(t *testing.T) {
	ctx := context.Background()
	b := &countingBackend{Backend: newBackend(t)}
	g := openGraph(t, b)

	for _, topics := range [][]string{nil, {"solo"}} {
		res, err := g.Connect(ctx, topics)
		if err != nil {
			t.Fatalf("Connect(%v): %v", topics, err)
		}
		if res != (graph.ConnectResult{}) {
			t.Errorf("Connect(%v) = %+v, want zero result", topics, res)
		}
	}
	if b.puts != 0 {
		t.Errorf("expected no flush, got %d", b.puts)
	}
}

func TestConnect_FlushesOncePerCall(t *testing.T) {
	b := &countingBackend{Backend: newBackend(t)}
	g := openGraph(t, b)

	if _, err := g.Connect(context.Background(), []string{"a", "b", "c", "d", "e"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if b.puts != 1 {
		t.Errorf("flushes = %d, want 1", b.puts)
	}
}

func TestConnect_FirstDuplicateWins(t *testing.T) {
	ctx := context.Background()
	b, err := store.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	corrupt := `{"nodes": [], "edges": [
		{"source": "a", "target": "b", "weight": 5},
		{"source": "a", "target": "b", "weight": 9}
	]}`
	if err := b.Put(ctx, store.KeyConnections, []byte(corrupt)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	g := openGraph(t, b)

	if _, err := g.Connect(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	doc, _ := g.Snapshot(ctx)
	if doc.Edges[0].Weight != 6 || doc.Edges[1].Weight != 9 {
		t.Errorf("edges = %v, want only the first duplicate incremented", doc.Edges)
	}
}

func TestAddNodes_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	g := openGraph(t, newBackend(t))

	added, err := g.AddNodes(ctx, []graph.Node{{ID: "foto", Weight: 3}, {ID: "kot", Weight: 4}})
	if err != nil {
		t.Fatalf("AddNodes: %v", err)
	}
	if diff := cmp.Diff([]string{"foto", "kot"}, added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}

	added, err = g.AddNodes(ctx, []graph.Node{{ID: "foto", Weight: 10}, {ID: "pies", Weight: 3}, {ID: "pies", Weight: 3}})
	if err != nil {
		t.Fatalf("AddNodes: %v", err)
	}
	if diff := cmp.Diff([]string{"pies"}, added); diff != "" {
		t.Errorf("added mismatch (-want +got):\n%s", diff)
	}

	doc, _ := g.Snapshot(ctx)
	want := []graph.Node{{ID: "foto", Weight: 3}, {ID: "kot", Weight: 4}, {ID: "pies", Weight: 3}}
	if diff := cmp.Diff(want, doc.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestEdge_Lookup(t *testing.T) {
	ctx := context.Background()
	g := openGraph(t, newBackend(t))
	if _, err := g.Connect(ctx, []string{"foto", "aplikacja"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	e, ok, err := g.Edge(ctx, "foto", "aplikacja")
	if err != nil || !ok {
		t.Fatalf("Edge: ok=%v err=%v", ok, err)
	}
	if e.Weight != 1 {
		t.Errorf("weight = %d, want 1", e.Weight)
	}
	if _, ok, _ := g.Edge(ctx, "aplikacja", "foto"); ok {
		t.Error("reverse edge should not exist")
	}
}

// countingBackend counts Put calls.
type countingBackend struct {
	store.Backend
	puts int
}

func (c *countingBackend) Put(ctx context.Context, key string, data []byte) error {
	c.puts++
	return c.Backend.Put(ctx, key, data)
}

func TestConnect_SeesEdgesWrittenByAnotherGraph(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	first := openGraph(t, b)
	second := openGraph(t, b)

	if _, err := first.Connect(ctx, []string{"foto", "aplikacja"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	res, err := second.Connect(ctx, []string{"foto", "aplikacja"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if res.Incremented != 1 || res.Created != 0 {
		t.Errorf("result = %+v, want the existing edge incremented", res)
	}
	edge, ok, err := first.Edge(ctx, "foto", "aplikacja")
	if err != nil || !ok {
		t.Fatalf("Edge: ok=%v err=%v", ok, err)
	}
	if edge.Weight != 2 {
		t.Errorf("weight = %d, want 2", edge.Weight)
	}
}
