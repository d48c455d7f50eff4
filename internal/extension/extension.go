// Package extension runs user-configured programs over a selection of comics.
package extension

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"github.com/starford/comicshelf/internal/apperr"
	"github.com/starford/comicshelf/internal/models"
)

// Host executes an extension over items and returns its status line.
type Host interface {
	Execute(ctx context.Context, items []models.Projection) (string, error)
}

// ProcessHost runs a program. Items are written to its stdin as one JSON
// array; trimmed stdout is the status. A non-zero exit is an ExtensionError
// carrying stderr.
type ProcessHost struct {
	Name string
	Argv []string
}

// NewProcessHost parses command with POSIX shell word splitting. Variables
// and command substitutions are not expanded.
func NewProcessHost(name, command string) (*ProcessHost, error) {
	argv, err := shell.Fields(command, func(string) string { return "" })
	if err != nil {
		return nil, fmt.Errorf("extension: parse %q: %w", name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("extension: %q has an empty command", name)
	}
	return &ProcessHost{Name: name, Argv: argv}, nil
}

// Execute implements Host.
func (h *ProcessHost) Execute(ctx context.Context, items []models.Projection) (string, error) {
	if items == nil {
		items = []models.Projection{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return "", &apperr.ExtensionError{Name: h.Name, Err: err}
	}

	cmd := exec.CommandContext(ctx, h.Argv[0], h.Argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", &apperr.ExtensionError{Name: h.Name, Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Registry holds the configured extensions by name.
type Registry struct {
	hosts map[string]Host
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hosts: make(map[string]Host)}
}

// Register adds h under name, replacing any previous one.
func (r *Registry) Register(name string, h Host) {
	r.hosts[name] = h
}

// Names lists registered extensions in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.hosts))
	for n := range r.hosts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Run executes the extension called name.
func (r *Registry) Run(ctx context.Context, name string, items []models.Projection) (string, error) {
	h, ok := r.hosts[name]
	if !ok {
		return "", &apperr.ExtensionError{Name: name, Err: apperr.ErrNotFound}
	}
	status, err := h.Execute(ctx, items)
	if err != nil {
		var ee *apperr.ExtensionError
		if !errors.As(err, &ee) {
			err = &apperr.ExtensionError{Name: name, Err: err}
		}
		return "", err
	}
	return status, nil
}
