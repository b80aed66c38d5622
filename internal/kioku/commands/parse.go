// Package commands recognises the in-band commands an assistant response
// may carry and dispatches them: EXECUTE:<task> runs one of a closed set of
// device tasks, UPDATE:<path>||<snippet> appends code to a workspace file.
package commands

import (
	"errors"
	"fmt"
	"strings"
)

// Prefixes and the update payload delimiter.
const (
	PrefixExecute   = "EXECUTE:"
	PrefixUpdate    = "UPDATE:"
	UpdateDelimiter = "||"
)

// Kind distinguishes the command variants.
type Kind int

const (
	KindExecute Kind = iota + 1
	KindUpdate
)

func (k Kind) String() string {
	switch k {
	case KindExecute:
		return "execute"
	case KindUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Command is a parsed in-band command.
type Command struct {
	Kind Kind

	// Task is set for KindExecute.
	Task Task

	// Path and Snippet are set for KindUpdate.
	Path    string
	Snippet string

	Raw string
}

var (
	// ErrNotACommand is returned when the response carries neither prefix.
	// Callers should use errors.Is to tell this expected case apart.
	ErrNotACommand = errors.New("not a command")

	// ErrMalformedUpdate is returned for an UPDATE payload without the
	// delimiter or with an empty path.
	ErrMalformedUpdate = errors.New("malformed update payload")
)

// Parse inspects an assistant response. Leading whitespace is ignored;
// the prefix must start the response.
func Parse(response string) (*Command, error) {
	text := strings.TrimLeft(response, " \t\r\n")

	switch {
	case strings.HasPrefix(text, PrefixExecute):
		name := strings.TrimSpace(strings.TrimPrefix(text, PrefixExecute))
		task, err := ParseTask(name)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: KindExecute, Task: task, Raw: text}, nil

	case strings.HasPrefix(text, PrefixUpdate):
		payload := strings.TrimSpace(strings.TrimPrefix(text, PrefixUpdate))
		path, snippet, ok := strings.Cut(payload, UpdateDelimiter)
		if !ok {
			return nil, fmt.Errorf("%w: missing %q in %q", ErrMalformedUpdate, UpdateDelimiter, payload)
		}
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, fmt.Errorf("%w: empty path", ErrMalformedUpdate)
		}
		return &Command{
			Kind:    KindUpdate,
			Path:    path,
			Snippet: strings.TrimSpace(snippet),
			Raw:     text,
		}, nil

	default:
		return nil, ErrNotACommand
	}
}
