package coordinator_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Kioku/internal/kioku/commands"
	"github.com/bdobrica/Kioku/internal/kioku/coordinator"
	"github.com/bdobrica/Kioku/internal/kioku/expansion"
	"github.com/bdobrica/Kioku/internal/kioku/graph"
	"github.com/bdobrica/Kioku/internal/kioku/memory"
	"github.com/bdobrica/Kioku/internal/kioku/modules"
	"github.com/bdobrica/Kioku/internal/kioku/reinforce"
	"github.com/bdobrica/Kioku/internal/kioku/store"
	"github.com/bdobrica/Kioku/internal/kioku/updater"
)

type harness struct {
	coord      *coordinator.Coordinator
	log        *memory.Log
	tracker    *reinforce.Tracker
	graph      *graph.Graph
	registry   *modules.Registry
	index      *modules.Index
	dispatcher *commands.Dispatcher
	workspace  string
	modulesDir string
	logs       *bytes.Buffer
}

func newHarness(t *testing.T, cfg coordinator.Config) *harness {
	t.Helper()
	return newHarnessWithWindow(t, cfg, 0)
}

func newHarnessWithWindow(t *testing.T, cfg coordinator.Config, maxEntries int) *harness {
	t.Helper()
	ctx := context.Background()
	b, err := store.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	if err := memory.Init(ctx, b, maxEntries); err != nil {
		t.Fatalf("memory.Init: %v", err)
	}
	if err := graph.Init(ctx, b); err != nil {
		t.Fatalf("graph.Init: %v", err)
	}

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log, err := memory.Open(ctx, b, logger)
	if err != nil {
		t.Fatalf("memory.Open: %v", err)
	}
	t.Cleanup(log.Close)
	tracker, err := reinforce.Open(ctx, b, reinforce.TrackerConfig{}, logger)
	if err != nil {
		t.Fatalf("reinforce.Open: %v", err)
	}
	t.Cleanup(tracker.Close)
	g, err := graph.Open(ctx, b, logger)
	if err != nil {
		t.Fatalf("graph.Open: %v", err)
	}
	t.Cleanup(g.Close)
	reg, err := modules.OpenRegistry(ctx, b, logger)
	if err != nil {
		t.Fatalf("OpenRegistry: %v", err)
	}
	t.Cleanup(reg.Close)

	workspace := t.TempDir()
	modulesDir := filepath.Join(t.TempDir(), "modules")
	up := updater.New(workspace, reg, logger)
	disp := commands.NewDispatcher(up, logger)
	idx := modules.NewIndex(modulesDir, logger)

	coord, err := coordinator.New(cfg, coordinator.Deps{
		Memory:       log,
		Graph:        g,
		Expander:     expansion.New(log, tracker, g, logger),
		Tracker:      tracker,
		Modules:      modules.NewCreator(modulesDir, reg, logger),
		Capabilities: idx,
		Helper:       up,
		Commands:     disp,
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}

	return &harness{
		coord:      coord,
		log:        log,
		tracker:    tracker,
		graph:      g,
		registry:   reg,
		index:      idx,
		dispatcher: disp,
		workspace:  workspace,
		modulesDir: modulesDir,
		logs:       logs,
	}
}

func (h *harness) process(t *testing.T, user, response string, topics ...string) *coordinator.Report {
	t.Helper()
	rep, err := h.coord.ProcessInteraction(context.Background(), coordinator.Interaction{
		UserInput:         user,
		AssistantResponse: response,
		Topics:            topics,
	})
	if err != nil {
		t.Fatalf("ProcessInteraction: %v", err)
	}
	return rep
}

func TestProcessInteraction_FotoAplikacja(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coordinator.Config{})
	var photos int
	if err := h.dispatcher.Register(commands.TaskTakePhoto, func(context.Context, commands.Task) (string, error) {
		photos++
		return "ok", nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	rep := h.process(t, "Zrobię zdjęcie proszę", "EXECUTE:take_photo", "foto", "aplikacja")

	if rep.TraceID == "" {
		t.Error("expected a trace id")
	}
	if rep.HistoryLength != 1 || rep.EdgesCreated != 1 {
		t.Errorf("unexpected report: %+v", rep)
	}
	e, ok, err := h.graph.Edge(ctx, "foto", "aplikacja")
	if err != nil || !ok || e.Weight != 1 {
		t.Errorf("edge foto→aplikacja = %+v, %v, %v", e, ok, err)
	}
	strengths, _ := h.tracker.Snapshot(ctx)
	if diff := cmp.Diff(map[string]int{"foto": 1, "aplikacja": 1}, strengths); diff != "" {
		t.Errorf("strengths mismatch (-want +got):\n%s", diff)
	}
	if photos != 1 {
		t.Errorf("take_photo dispatched %d times, want 1", photos)
	}
	if rep.Command == nil || rep.Command.Task != commands.TaskTakePhoto {
		t.Errorf("report command = %+v", rep.Command)
	}
	if !strings.Contains(h.logs.String(), "trace_id="+rep.TraceID) {
		t.Error("log lines should carry the trace id")
	}
}

func TestProcessInteraction_UpdateCommand(t *testing.T) {
	h := newHarness(t, coordinator.Config{})

	rep := h.process(t, "dodaj kod", "UPDATE:notes.py||print(1)")

	if rep.Command == nil || !rep.Command.Applied {
		t.Fatalf("expected an applied update, got %+v (err %q)", rep.Command, rep.CommandError)
	}
	data, err := os.ReadFile(filepath.Join(h.workspace, "notes.py"))
	if err != nil {
		t.Fatalf("read notes.py: %v", err)
	}
	if !strings.HasSuffix(string(data), "print(1)\n") {
		t.Errorf("notes.py = %q", data)
	}
}

func TestProcessInteraction_MalformedUpdateIsLogged(t *testing.T) {
	h := newHarness(t, coordinator.Config{})

	rep := h.process(t, "coś", "UPDATE:badpayload")

	if rep.Command != nil {
		t.Errorf("nothing should be dispatched, got %+v", rep.Command)
	}
	if rep.CommandError == "" {
		t.Error("expected the parse error in the report")
	}
	if !strings.Contains(h.logs.String(), "malformed update command") {
		t.Errorf("expected the error to be logged, logs:\n%s", h.logs.String())
	}
}

func TestProcessInteraction_UnknownTaskIsLogged(t *testing.T) {
	h := newHarness(t, coordinator.Config{})

	rep := h.process(t, "coś", "EXECUTE:launch_rocket")
	if rep.Command != nil || rep.CommandError == "" {
		t.Errorf("unexpected report: %+v", rep)
	}
	if !strings.Contains(h.logs.String(), "unknown task requested") {
		t.Error("expected the unknown task to be logged")
	}
}

func TestProcessInteraction_HelperEveryThreshold(t *testing.T) {
	h := newHarness(t, coordinator.Config{InteractionThreshold: 20})
	helper := filepath.Join(h.workspace, coordinator.DefaultHelperTarget)

	var appended []int
	for i := 1; i <= 45; i++ {
		rep := h.process(t, "u", "a")
		if rep.HelperAppended {
			appended = append(appended, rep.HistoryLength)
		}
	}
	if diff := cmp.Diff([]int{20, 40}, appended); diff != "" {
		t.Errorf("helper appended at unexpected lengths (-want +got):\n%s", diff)
	}

	data, err := os.ReadFile(helper)
	if err != nil {
		t.Fatalf("read helper target: %v", err)
	}
	if got := strings.Count(string(data), "def auto_helper():"); got != 2 {
		t.Errorf("helper appended %d times, want 2", got)
	}
	if !strings.Contains(string(data), fmt.Sprintf("every %d interactions", 20)) {
		t.Errorf("snippet should mention the threshold: %q", data)
	}
}

func TestProcessInteraction_HelperRepeatsOnceWindowIsFull(t *testing.T) {
	h := newHarnessWithWindow(t, coordinator.Config{InteractionThreshold: 20}, 40)

	var appended []int
	for i := 1; i <= 42; i++ {
		rep := h.process(t, "u", "a")
		if rep.HelperAppended {
			appended = append(appended, rep.HistoryLength)
		}
	}
	// The length stays at the window size, a multiple of the threshold.
	if diff := cmp.Diff([]int{20, 40, 40, 40}, appended); diff != "" {
		t.Errorf("helper appended at unexpected lengths (-want +got):\n%s", diff)
	}
}

func TestProcessInteraction_ReportsServingCapability(t *testing.T) {
	h := newHarness(t, coordinator.Config{ModuleStrengthLimit: 2})

	h.process(t, "u", "a", "kamera")
	rep := h.process(t, "u", "a", "kamera")
	if len(rep.Capabilities) != 0 {
		t.Errorf("capabilities before the index reloads = %v", rep.Capabilities)
	}

	if _, err := h.index.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	rep = h.process(t, "u", "a", "kamera", "pogoda")
	if diff := cmp.Diff(map[string]string{"kamera": "module_kamera"}, rep.Capabilities); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessInteraction_CreatesModuleAtStrengthLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coordinator.Config{ModuleStrengthLimit: 5})

	for i := 1; i <= 4; i++ {
		rep := h.process(t, "u", "a", "muzyka")
		if len(rep.ModulesCreated) != 0 {
			t.Fatalf("module created early at strength %d", i)
		}
	}
	rep := h.process(t, "u", "a", "muzyka")
	if diff := cmp.Diff([]string{"muzyka"}, rep.ModulesCreated); diff != "" {
		t.Errorf("modules created mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(h.modulesDir, "module_muzyka.yaml")); err != nil {
		t.Errorf("descriptor missing: %v", err)
	}

	rep = h.process(t, "u", "a", "muzyka")
	if len(rep.ModulesCreated) != 0 {
		t.Errorf("module recreated: %v", rep.ModulesCreated)
	}
	recs, _ := h.registry.Records(ctx)
	if len(recs) != 1 {
		t.Errorf("expected one registry record, got %d", len(recs))
	}
}

func TestProcessInteraction_ExpandsNodes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coordinator.Config{})

	for range 2 {
		h.process(t, "u", "a", "pogoda", "kamera")
	}
	rep := h.process(t, "u", "a", "pogoda")
	if diff := cmp.Diff([]string{"pogoda"}, rep.NodesAdded); diff != "" {
		t.Errorf("nodes added mismatch (-want +got):\n%s", diff)
	}
	doc, _ := h.graph.Snapshot(ctx)
	if diff := cmp.Diff([]graph.Node{{ID: "pogoda", Weight: 3}}, doc.Nodes); diff != "" {
		t.Errorf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessInteraction_ReservedTopicSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coordinator.Config{})

	h.process(t, "u", "a", "foto", reinforce.ConfigKey)

	strengths, _ := h.tracker.Snapshot(ctx)
	if diff := cmp.Diff(map[string]int{"foto": 1}, strengths); diff != "" {
		t.Errorf("strengths mismatch (-want +got):\n%s", diff)
	}
}

type failingConnector struct{}

func (failingConnector) Connect(context.Context, []string) (graph.ConnectResult, error) {
	return graph.ConnectResult{}, store.ErrCorrupt
}

func TestProcessInteraction_StoreFailureAborts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, coordinator.Config{})

	tracker := h.tracker
	coord, err := coordinator.New(coordinator.Config{}, coordinator.Deps{
		Memory:   h.log,
		Graph:    failingConnector{},
		Expander: expansion.New(h.log, tracker, h.graph, nil),
		Tracker:  tracker,
		Modules:  modules.NewCreator(h.modulesDir, h.registry, nil),
		Helper:   updater.New(h.workspace, nil, nil),
		Commands: h.dispatcher,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rep, err := coord.ProcessInteraction(ctx, coordinator.Interaction{Topics: []string{"foto", "kot"}})
	if !errors.Is(err, store.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if rep.HistoryLength != 1 {
		t.Errorf("memory step should have completed, report %+v", rep)
	}
	if n, _ := h.log.Len(ctx); n != 1 {
		t.Errorf("memory entry should persist, len = %d", n)
	}
	if s, _ := tracker.Strength(ctx, "foto"); s != 0 {
		t.Errorf("reinforcement should not have run, strength = %d", s)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := coordinator.New(coordinator.Config{}, coordinator.Deps{}); err == nil {
		t.Fatal("expected an error for missing dependencies")
	}
}

func TestConfig_Defaults(t *testing.T) {
	h := newHarness(t, coordinator.Config{})
	want := coordinator.Config{
		InteractionThreshold: 20,
		ModuleStrengthLimit:  5,
		HelperTarget:         "main.py",
		Importance:           1,
	}
	if diff := cmp.Diff(want, h.coord.Config()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
