package command

import (
	"fmt"
	"sort"
	"strings"
)

// Definition describes a slash command known to the bot.
type Definition struct {
	Name          string
	TakesArgument bool
	ArgumentLabel string
	Description   string
}

// Usage renders the command as it appears in help text, e.g. "/weather <city>".
func (d Definition) Usage() string {
	if d.TakesArgument && d.ArgumentLabel != "" {
		return fmt.Sprintf("/%s <%s>", d.Name, d.ArgumentLabel)
	}
	return "/" + d.Name
}

// Registry holds the static command catalogue. It is never mutated after
// NewRegistry returns, so it is safe to share between goroutines.
type Registry struct {
	commands map[string]Definition
	sorted   []Definition
}

// NewRegistry builds a registry from the given definitions. Names are
// lower-cased; duplicates and empty names are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{commands: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		d.Name = strings.ToLower(strings.TrimSpace(d.Name))
		if d.Name == "" {
			return nil, fmt.Errorf("command name is required")
		}
		if _, dup := r.commands[d.Name]; dup {
			return nil, fmt.Errorf("duplicate command: %s", d.Name)
		}
		r.commands[d.Name] = d
		r.sorted = append(r.sorted, d)
	}
	sort.Slice(r.sorted, func(i, j int) bool {
		return r.sorted[i].Name < r.sorted[j].Name
	})
	return r, nil
}

// MustRegistry is NewRegistry for static catalogues; it panics on error.
func MustRegistry(defs ...Definition) *Registry {
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve looks up a command by name, ignoring case.
func (r *Registry) Resolve(token string) (Definition, bool) {
	d, ok := r.commands[strings.ToLower(token)]
	return d, ok
}

// Describe returns all commands sorted by name.
func (r *Registry) Describe() []Definition {
	out := make([]Definition, len(r.sorted))
	copy(out, r.sorted)
	return out
}

// HelpLines renders one "- /name <arg>: description" line per command.
func (r *Registry) HelpLines() string {
	var b strings.Builder
	for i, d := range r.sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", d.Usage(), d.Description)
	}
	return b.String()
}
