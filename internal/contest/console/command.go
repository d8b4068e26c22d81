package console

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Field is a named command argument.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Required bool
}

// Command is one console verb.
type Command struct {
	Name    string
	Summary string
	Fields  []Field
	Run     func(ctx context.Context, s *Session, p Params) error
}

// Params holds key=value arguments. Keys are case-insensitive.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

// Canonicalize rewrites aliases to field names.
func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// Int parses an integer parameter.
func (p Params) Int(key string) (int, error) {
	raw := strings.TrimSpace(p.Get(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", key, raw)
	}
	return n, nil
}

// Bool parses a boolean parameter; a missing key is false.
func (p Params) Bool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(p.Get(key)))
	return err == nil && v
}

// usage renders "name key=<prompt> [key=<prompt>]".
func (c Command) usage() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, f := range c.Fields {
		if f.Required {
			fmt.Fprintf(&b, " %s=<%s>", f.Name, f.Prompt)
		} else {
			fmt.Fprintf(&b, " [%s=<%s>]", f.Name, f.Prompt)
		}
	}
	return b.String()
}

func sortedNames(commands map[string]Command) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source file failed: %w", err)
	}
	return string(data), nil
}
