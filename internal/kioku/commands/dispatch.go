package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bdobrica/Kioku/internal/kioku/updater"
)

// TaskHandler performs a device task and returns a short status line.
type TaskHandler func(ctx context.Context, task Task) (string, error)

// Appender applies UPDATE commands.
type Appender interface {
	Append(ctx context.Context, path, snippet string) updater.Result
}

// Outcome reports what a dispatched command did.
type Outcome struct {
	Kind    Kind
	Task    Task
	Applied bool
	Message string
}

// Dispatcher routes parsed commands to task handlers or the appender.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Task]TaskHandler
	appender Appender
	logger   *slog.Logger
}

// NewDispatcher returns a dispatcher with a logging handler for every
// task. appender may be nil, in which case UPDATE commands are refused.
func NewDispatcher(appender Appender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		handlers: make(map[Task]TaskHandler, len(Tasks)),
		appender: appender,
		logger:   logger,
	}
	for _, t := range Tasks {
		d.handlers[t] = d.logTask
	}
	return d
}

// Register replaces the handler for task.
func (d *Dispatcher) Register(task Task, h TaskHandler) error {
	if _, err := ParseTask(string(task)); err != nil {
		return err
	}
	d.mu.Lock()
	d.handlers[task] = h
	d.mu.Unlock()
	return nil
}

// Dispatch executes cmd. Update failures are reported in the outcome, not
// as errors; task handler errors are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd *Command) (Outcome, error) {
	if cmd == nil {
		return Outcome{}, ErrNotACommand
	}

	switch cmd.Kind {
	case KindExecute:
		d.mu.RLock()
		h, ok := d.handlers[cmd.Task]
		d.mu.RUnlock()
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownTask, cmd.Task)
		}
		msg, err := h(ctx, cmd.Task)
		if err != nil {
			return Outcome{Kind: KindExecute, Task: cmd.Task}, fmt.Errorf("commands: %s: %w", cmd.Task, err)
		}
		return Outcome{Kind: KindExecute, Task: cmd.Task, Applied: true, Message: msg}, nil

	case KindUpdate:
		if d.appender == nil {
			return Outcome{Kind: KindUpdate, Message: "updates are disabled"}, nil
		}
		res := d.appender.Append(ctx, cmd.Path, cmd.Snippet)
		return Outcome{Kind: KindUpdate, Applied: res.Applied, Message: res.Message}, nil

	default:
		return Outcome{}, fmt.Errorf("commands: unsupported kind %v", cmd.Kind)
	}
}

func (d *Dispatcher) logTask(ctx context.Context, task Task) (string, error) {
	d.logger.InfoContext(ctx, "commands: task requested", "task", task.String())
	return "requested " + task.String(), nil
}
