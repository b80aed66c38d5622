// Package expansion promotes frequently mentioned topics into nodes of the
// connection graph.
package expansion

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/bdobrica/Kioku/internal/kioku/graph"
	"github.com/bdobrica/Kioku/internal/kioku/memory"
)

// HistorySource yields the full interaction history.
type HistorySource interface {
	History(ctx context.Context) ([]memory.Entry, error)
}

// ThresholdSource yields the repetition threshold.
type ThresholdSource interface {
	RepetitionThreshold(ctx context.Context) (int, error)
}

// NodeSink receives nodes for topics that crossed the threshold.
type NodeSink interface {
	AddNodes(ctx context.Context, nodes []graph.Node) ([]string, error)
}

// Expander recomputes topic frequency on every call; there is no cache.
type Expander struct {
	history   HistorySource
	threshold ThresholdSource
	nodes     NodeSink
	logger    *slog.Logger
}

// New returns an Expander.
func New(history HistorySource, threshold ThresholdSource, nodes NodeSink, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{history: history, threshold: threshold, nodes: nodes, logger: logger}
}

// Expand adds a {id: topic, weight: count} node for every topic mentioned
// at least threshold times that is not yet a node. It returns the topics
// that became nodes.
func (x *Expander) Expand(ctx context.Context) ([]string, error) {
	history, err := x.history.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("expansion: read history: %w", err)
	}
	threshold, err := x.threshold.RepetitionThreshold(ctx)
	if err != nil {
		return nil, fmt.Errorf("expansion: read threshold: %w", err)
	}

	candidates := Candidates(Frequency(history), threshold)
	if len(candidates) == 0 {
		return nil, nil
	}

	added, err := x.nodes.AddNodes(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("expansion: %w", err)
	}
	if len(added) > 0 {
		x.logger.Info("expansion: promoted topics", "topics", added, "threshold", threshold)
	}
	return added, nil
}

// Frequency counts topic occurrences across every entry.
func Frequency(history []memory.Entry) map[string]int {
	freq := make(map[string]int)
	for _, e := range history {
		for _, t := range e.Topics {
			freq[t]++
		}
	}
	return freq
}

// Candidates returns nodes for topics with count >= threshold, by
// descending count then ascending topic.
func Candidates(freq map[string]int, threshold int) []graph.Node {
	var nodes []graph.Node
	for topic, n := range freq {
		if n >= threshold {
			nodes = append(nodes, graph.Node{ID: topic, Weight: n})
		}
	}
	slices.SortFunc(nodes, func(a, b graph.Node) int {
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return nodes
}
