package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bdobrica/Kioku/internal/kioku/coordinator"
	"github.com/bdobrica/Kioku/internal/kioku/graph"
)

type env struct {
	dataDir   string
	workspace string
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	e := env{dataDir: filepath.Join(root, "data"), workspace: filepath.Join(root, "ws")}
	if err := os.MkdirAll(e.workspace, 0o755); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(append([]string{"--data-dir", e.dataDir, "--workspace", e.workspace, "--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e env) mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := e.run(t, stdin, args...)
	if err != nil {
		t.Fatalf("kioku %v: %v", args, err)
	}
	return out
}

func TestCLI_InteractRequiresInit(t *testing.T) {
	e := newEnv(t)
	if _, err := e.run(t, "", "interact", "--user", "hello there"); err == nil {
		t.Fatal("expected an error before init")
	}
}

func TestCLI_InteractAndInspect(t *testing.T) {
	e := newEnv(t)
	if out := e.mustRun(t, "", "init"); !strings.Contains(out, "initialized") {
		t.Errorf("init output = %q", out)
	}

	out := e.mustRun(t, "", "interact", "--user", "Zrobię zdjęcie", "--response", "EXECUTE:take_photo", "--topics", "foto,aplikacja")
	var rep coordinator.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out)
	}
	if rep.HistoryLength != 1 || rep.EdgesCreated != 1 {
		t.Errorf("unexpected report %+v", rep)
	}

	if got := e.mustRun(t, "", "strength", "foto", "nieznany"); got != "foto\t1\nnieznany\t0\n" {
		t.Errorf("strength output = %q", got)
	}

	var doc graph.Document
	if err := json.Unmarshal([]byte(e.mustRun(t, "", "graph")), &doc); err != nil {
		t.Fatalf("graph output is not JSON: %v", err)
	}
	if len(doc.Edges) != 1 || doc.Edges[0].Source != "foto" || doc.Edges[0].Target != "aplikacja" {
		t.Errorf("unexpected graph %+v", doc)
	}
}

func TestCLI_ChatFromStdin(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "", "init")

	stdin := strings.Join([]string{
		"lubię muzyka klasyczna\tświetnie",
		"",
		"muzyka klasyczna relaksuje\tUPDATE:notes.py||print(1)",
		"muzyka",
	}, "\n")
	out := e.mustRun(t, stdin, "chat")
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 3 {
		t.Fatalf("expected 3 processed lines, got %q", out)
	}

	if got := e.mustRun(t, "", "strength"); !strings.HasPrefix(got, "muzyka\t3\n") {
		t.Errorf("strength output = %q", got)
	}
	data, err := os.ReadFile(filepath.Join(e.workspace, "notes.py"))
	if err != nil || !strings.Contains(string(data), "print(1)") {
		t.Errorf("notes.py = %q, %v", data, err)
	}
	if got := e.mustRun(t, "", "modules", "--records"); !strings.Contains(got, "updated\tnotes.py") {
		t.Errorf("registry output = %q", got)
	}
}

func TestCLI_Compact(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "", "init")
	e.mustRun(t, "", "interact", "--user", "This sentence is comfortably longer than thirty characters.")

	if got := e.mustRun(t, "", "compact"); got != "kept 1 memories\n" {
		t.Errorf("compact output = %q", got)
	}
}

func TestCLI_Recall(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "", "init")

	if got := e.mustRun(t, "", "recall"); got != emptyRecall+"\n" {
		t.Errorf("recall before compact = %q, want %q", got, emptyRecall)
	}

	text := "This sentence is comfortably longer than thirty characters."
	e.mustRun(t, "", "interact", "--user", text)
	e.mustRun(t, "", "compact")
	if got := e.mustRun(t, "", "recall"); got != text+"\n" {
		t.Errorf("recall after compact = %q, want %q", got, text)
	}
}

func TestCLI_Insert(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "", "init")
	path := filepath.Join(e.workspace, "main.py")
	if err := os.WriteFile(path, []byte("# plugins\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := e.mustRun(t, "", "insert", "main.py", "--marker", "# plugins", "--snippet", "load()"); got != "updated main.py\n" {
		t.Errorf("insert output = %q", got)
	}
	if data, _ := os.ReadFile(path); string(data) != "# plugins\nload()\n" {
		t.Errorf("main.py = %q", data)
	}
	if _, err := e.run(t, "", "insert", "main.py", "--marker", "# absent", "--snippet", "load()"); err == nil {
		t.Error("expected an error for a missing marker")
	}
}

func TestCLI_Version(t *testing.T) {
	e := newEnv(t)
	if got := e.mustRun(t, "", "version"); !strings.HasPrefix(got, "kioku ") {
		t.Errorf("version output = %q", got)
	}
}

func TestCLI_SQLiteBackend(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "", "--backend", "sqlite", "init")
	e.mustRun(t, "", "--backend", "sqlite", "interact", "--user", "kamera kamera")
	if got := e.mustRun(t, "", "--backend", "sqlite", "strength", "kamera"); got != "kamera\t2\n" {
		t.Errorf("strength output = %q", got)
	}
}
