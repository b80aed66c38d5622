// Package coordinator runs the per-interaction pipeline: record the
// exchange, grow the connection graph, promote recurring topics, reinforce,
// create capability modules for strong topics, append the periodic helper,
// and act on in-band commands in the assistant response.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Kioku/common/spec/capability"
	"github.com/bdobrica/Kioku/common/trace"
	"github.com/bdobrica/Kioku/internal/kioku/commands"
	"github.com/bdobrica/Kioku/internal/kioku/graph"
	"github.com/bdobrica/Kioku/internal/kioku/memory"
	"github.com/bdobrica/Kioku/internal/kioku/metrics"
	"github.com/bdobrica/Kioku/internal/kioku/reinforce"
)

// Defaults.
const (
	DefaultInteractionThreshold = 20
	DefaultModuleStrengthLimit  = 5
	DefaultHelperTarget         = "main.py"
	DefaultImportance           = 1
)

// HelperSnippet is appended to the helper target every
// InteractionThreshold interactions. %d is the threshold.
const HelperSnippet = `# Helper added automatically every %d interactions
def auto_helper():
    print('helper triggered after heavy traffic')
`

// Config tunes the pipeline thresholds.
type Config struct {
	InteractionThreshold int
	ModuleStrengthLimit  int
	HelperTarget         string
	Importance           int
}

func (c Config) withDefaults() Config {
	if c.InteractionThreshold <= 0 {
		c.InteractionThreshold = DefaultInteractionThreshold
	}
	if c.ModuleStrengthLimit <= 0 {
		c.ModuleStrengthLimit = DefaultModuleStrengthLimit
	}
	if c.HelperTarget == "" {
		c.HelperTarget = DefaultHelperTarget
	}
	if c.Importance <= 0 {
		c.Importance = DefaultImportance
	}
	return c
}

// MemoryLog records exchanges.
type MemoryLog interface {
	Append(ctx context.Context, user, assistant string, topics []string, importance int) (memory.Entry, int, error)
}

// Connector grows the connection graph.
type Connector interface {
	Connect(ctx context.Context, topics []string) (graph.ConnectResult, error)
}

// Expander promotes recurring topics to graph nodes.
type Expander interface {
	Expand(ctx context.Context) ([]string, error)
}

// Reinforcer tracks topic strengths.
type Reinforcer interface {
	Reinforce(ctx context.Context, topic string) (int, error)
	Strength(ctx context.Context, topic string) (int, error)
}

// ModuleCreator creates capability modules; it reports false when the
// module already exists.
type ModuleCreator interface {
	Create(ctx context.Context, topic string) (bool, error)
}

// CapabilityLookup resolves a topic to the enabled module serving it.
type CapabilityLookup interface {
	Lookup(topic string) (capability.Descriptor, bool)
}

// Dispatcher executes in-band commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd *commands.Command) (commands.Outcome, error)
}

// Deps are the collaborators of a Coordinator. Capabilities, Metrics and
// Logger are optional.
type Deps struct {
	Memory       MemoryLog
	Graph        Connector
	Expander     Expander
	Tracker      Reinforcer
	Modules      ModuleCreator
	Capabilities CapabilityLookup
	Helper       commands.Appender
	Commands     Dispatcher
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// Interaction is one user/assistant exchange.
type Interaction struct {
	UserInput         string
	AssistantResponse string
	Topics            []string
}

// Report summarises what one interaction changed.
type Report struct {
	TraceID          string
	HistoryLength    int
	EdgesCreated     int
	EdgesIncremented int
	NodesAdded       []string
	Strengths        map[string]int
	ModulesCreated   []string
	Capabilities     map[string]string // topic -> module serving it
	HelperAppended   bool
	Command          *commands.Outcome
	CommandError     string
}

// Coordinator wires the stores into the interaction pipeline.
type Coordinator struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns a Coordinator.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	switch {
	case deps.Memory == nil:
		return nil, errors.New("coordinator: memory log is required")
	case deps.Graph == nil:
		return nil, errors.New("coordinator: graph is required")
	case deps.Expander == nil:
		return nil, errors.New("coordinator: expander is required")
	case deps.Tracker == nil:
		return nil, errors.New("coordinator: tracker is required")
	case deps.Modules == nil:
		return nil, errors.New("coordinator: module creator is required")
	case deps.Helper == nil:
		return nil, errors.New("coordinator: helper appender is required")
	case deps.Commands == nil:
		return nil, errors.New("coordinator: command dispatcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Coordinator{cfg: cfg.withDefaults(), deps: deps}, nil
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// ProcessInteraction runs the pipeline for one exchange. A failure in any
// store step aborts the remaining steps and is returned; effects of the
// steps already completed persist. Command problems are logged only.
func (c *Coordinator) ProcessInteraction(ctx context.Context, in Interaction) (rep *Report, err error) {
	start := time.Now()
	ctx, id := trace.Ensure(ctx)
	log := trace.Logger(ctx, c.deps.Logger)
	defer func() { c.deps.Metrics.ObserveInteraction(time.Since(start), err) }()

	rep = &Report{TraceID: id, Strengths: make(map[string]int), Capabilities: make(map[string]string)}

	// 1. memory
	_, length, err := c.deps.Memory.Append(ctx, in.UserInput, in.AssistantResponse, in.Topics, c.cfg.Importance)
	if err != nil {
		return rep, fmt.Errorf("coordinator: record memory: %w", err)
	}
	rep.HistoryLength = length
	c.deps.Metrics.HistoryLength(length)

	// 2. graph edges
	conn, err := c.deps.Graph.Connect(ctx, in.Topics)
	if err != nil {
		return rep, fmt.Errorf("coordinator: connect topics: %w", err)
	}
	rep.EdgesCreated, rep.EdgesIncremented = conn.Created, conn.Incremented
	c.deps.Metrics.Edges(conn.Created, conn.Incremented)

	// 3. node expansion
	added, err := c.deps.Expander.Expand(ctx)
	if err != nil {
		return rep, fmt.Errorf("coordinator: expand modules: %w", err)
	}
	rep.NodesAdded = added
	c.deps.Metrics.NodesAdded(len(added))

	// 4. reinforcement
	for _, topic := range in.Topics {
		n, err := c.deps.Tracker.Reinforce(ctx, topic)
		if errors.Is(err, reinforce.ErrReservedTopic) || errors.Is(err, reinforce.ErrEmptyTopic) {
			log.Warn("coordinator: topic not reinforced", "topic", topic, "err", err)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("coordinator: reinforce: %w", err)
		}
		rep.Strengths[topic] = n
		c.deps.Metrics.Reinforced()
	}

	// 5. capability modules
	seen := make(map[string]struct{}, len(in.Topics))
	for _, topic := range in.Topics {
		if _, dup := seen[topic]; dup {
			continue
		}
		seen[topic] = struct{}{}

		if c.deps.Capabilities != nil {
			if d, ok := c.deps.Capabilities.Lookup(topic); ok {
				rep.Capabilities[topic] = d.Name
			}
		}

		strength, err := c.deps.Tracker.Strength(ctx, topic)
		if err != nil {
			return rep, fmt.Errorf("coordinator: read strength: %w", err)
		}
		if strength < c.cfg.ModuleStrengthLimit {
			continue
		}
		created, err := c.deps.Modules.Create(ctx, topic)
		if err != nil {
			return rep, fmt.Errorf("coordinator: create module: %w", err)
		}
		if created {
			rep.ModulesCreated = append(rep.ModulesCreated, topic)
			c.deps.Metrics.ModuleCreated()
		}
	}

	// 6. periodic helper
	if length > 0 && length%c.cfg.InteractionThreshold == 0 {
		res := c.deps.Helper.Append(ctx, c.cfg.HelperTarget, fmt.Sprintf(HelperSnippet, c.cfg.InteractionThreshold))
		if res.Applied {
			rep.HelperAppended = true
			c.deps.Metrics.HelperAppended()
			log.Info("coordinator: helper appended", "target", c.cfg.HelperTarget, "history_length", length)
		} else {
			log.Warn("coordinator: helper append failed", "target", c.cfg.HelperTarget, "msg", res.Message)
		}
	}

	// 7. in-band commands
	c.handleCommand(ctx, log, in.AssistantResponse, rep)

	log.Info("coordinator: interaction processed",
		"history_length", rep.HistoryLength,
		"topics", len(in.Topics),
		"edges_created", rep.EdgesCreated,
		"nodes_added", len(rep.NodesAdded),
		"modules_created", len(rep.ModulesCreated),
	)
	return rep, nil
}

func (c *Coordinator) handleCommand(ctx context.Context, log *slog.Logger, response string, rep *Report) {
	cmd, err := commands.Parse(response)
	switch {
	case errors.Is(err, commands.ErrNotACommand):
		return
	case errors.Is(err, commands.ErrMalformedUpdate):
		log.Error("coordinator: malformed update command", "err", err)
		rep.CommandError = err.Error()
		c.deps.Metrics.Command(commands.KindUpdate.String(), "rejected")
		return
	case errors.Is(err, commands.ErrUnknownTask):
		log.Warn("coordinator: unknown task requested", "err", err)
		rep.CommandError = err.Error()
		c.deps.Metrics.Command(commands.KindExecute.String(), "rejected")
		return
	case err != nil:
		log.Error("coordinator: command parse failed", "err", err)
		rep.CommandError = err.Error()
		return
	}

	out, err := c.deps.Commands.Dispatch(ctx, cmd)
	if err != nil {
		log.Error("coordinator: command failed", "kind", cmd.Kind.String(), "err", err)
		rep.CommandError = err.Error()
		c.deps.Metrics.Command(cmd.Kind.String(), "error")
		return
	}
	rep.Command = &out
	if !out.Applied {
		log.Warn("coordinator: command not applied", "kind", cmd.Kind.String(), "msg", out.Message)
		c.deps.Metrics.Command(cmd.Kind.String(), "refused")
		return
	}
	log.Info("coordinator: command dispatched", "kind", cmd.Kind.String(), "task", string(out.Task), "msg", out.Message)
	c.deps.Metrics.Command(cmd.Kind.String(), "ok")
}
