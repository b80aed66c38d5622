// Package graph maintains the topic connection graph: weighted nodes for
// recurring topics and directed edges counting how often one topic directly
// followed another within a single interaction.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bdobrica/Kioku/internal/kioku/store"
	"github.com/bdobrica/Kioku/internal/kioku/writer"
)

// Node is a topic promoted into the graph.
type Node struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
}

// Edge counts ordered adjacency of Source then Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// Document is the persisted connections layout.
type Document struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

func (d Document) clone() Document {
	return Document{
		Nodes: append(make([]Node, 0, len(d.Nodes)), d.Nodes...),
		Edges: append(make([]Edge, 0, len(d.Edges)), d.Edges...),
	}
}

// ConnectResult reports what one Connect call changed.
type ConnectResult struct {
	Created     int
	Incremented int
}

// Graph owns the connections document behind a writer queue. Every call
// reads the document from the backend.
type Graph struct {
	backend store.Backend
	queue   *writer.Queue
	logger  *slog.Logger
}

// Init writes an empty connections document when none exists.
func Init(ctx context.Context, b store.Backend) error {
	var doc Document
	err := store.Load(ctx, b, store.KeyConnections, store.Schema(store.KeyConnections), &doc)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return store.Save(ctx, b, store.KeyConnections, Document{Nodes: []Node{}, Edges: []Edge{}})
}

// Open loads the connections document, which must already exist.
func Open(ctx context.Context, b store.Backend, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := load(ctx, b); err != nil {
		return nil, fmt.Errorf("graph: open: %w", err)
	}
	return &Graph{
		backend: b,
		queue:   writer.Start(store.KeyConnections),
		logger:  logger,
	}, nil
}

func load(ctx context.Context, b store.Backend) (Document, error) {
	var doc Document
	if err := store.Load(ctx, b, store.KeyConnections, store.Schema(store.KeyConnections), &doc); err != nil {
		return Document{}, err
	}
	return doc.clone(), nil
}

// Close stops the writer goroutine.
func (g *Graph) Close() {
	g.queue.Close()
}

// Connect records every consecutive pair of topics. An existing edge for
// the ordered pair is incremented (the first one in document order, should
// duplicates ever exist); otherwise a weight-1 edge is appended. The
// document is flushed once, after all pairs. Fewer than two topics is a
// no-op without a flush.
func (g *Graph) Connect(ctx context.Context, topics []string) (ConnectResult, error) {
	if len(topics) < 2 {
		return ConnectResult{}, nil
	}

	var res ConnectResult
	err := g.queue.Do(ctx, func() error {
		next, err := load(ctx, g.backend)
		if err != nil {
			return err
		}
		var r ConnectResult
		for i := 0; i+1 < len(topics); i++ {
			src, tgt := topics[i], topics[i+1]
			idx := slices.IndexFunc(next.Edges, func(e Edge) bool {
				return e.Source == src && e.Target == tgt
			})
			if idx >= 0 {
				next.Edges[idx].Weight++
				r.Incremented++
				continue
			}
			next.Edges = append(next.Edges, Edge{Source: src, Target: tgt, Weight: 1})
			r.Created++
		}

		if err := store.Save(ctx, g.backend, store.KeyConnections, next); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return ConnectResult{}, fmt.Errorf("graph: connect: %w", err)
	}
	g.logger.Debug("graph: connected topics", "created", res.Created, "incremented", res.Incremented)
	return res, nil
}

// AddNodes appends the nodes whose id is not yet in the graph, in the order
// given, and returns the ids it added. Nothing is flushed when every node
// already exists.
func (g *Graph) AddNodes(ctx context.Context, nodes []Node) ([]string, error) {
	var added []string
	err := g.queue.Do(ctx, func() error {
		next, err := load(ctx, g.backend)
		if err != nil {
			return err
		}
		present := make(map[string]struct{}, len(next.Nodes))
		for _, n := range next.Nodes {
			present[n.ID] = struct{}{}
		}

		var ids []string
		for _, n := range nodes {
			if _, ok := present[n.ID]; ok {
				continue
			}
			present[n.ID] = struct{}{}
			next.Nodes = append(next.Nodes, n)
			ids = append(ids, n.ID)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := store.Save(ctx, g.backend, store.KeyConnections, next); err != nil {
			return err
		}
		added = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("graph: add nodes: %w", err)
	}
	return added, nil
}

// Edge returns the first edge for the ordered pair.
func (g *Graph) Edge(ctx context.Context, source, target string) (Edge, bool, error) {
	var (
		edge  Edge
		found bool
	)
	err := g.queue.Do(ctx, func() error {
		doc, err := load(ctx, g.backend)
		if err != nil {
			return err
		}
		for _, e := range doc.Edges {
			if e.Source == source && e.Target == target {
				edge, found = e, true
				break
			}
		}
		return nil
	})
	if err != nil {
		return Edge{}, false, fmt.Errorf("graph: edge: %w", err)
	}
	return edge, found, nil
}

// Snapshot returns a copy of the whole graph.
func (g *Graph) Snapshot(ctx context.Context) (Document, error) {
	var doc Document
	err := g.queue.Do(ctx, func() error {
		var err error
		doc, err = load(ctx, g.backend)
		return err
	})
	if err != nil {
		return Document{}, fmt.Errorf("graph: snapshot: %w", err)
	}
	return doc, nil
}
