// Package envcfg holds the explicit environment handed to build subprocesses.
// The process environment itself is never modified.
package envcfg

import (
	"os"
	"slices"
	"strings"
)

// ConfiguredKeys are the overlay variables merged by Configure.
var ConfiguredKeys = []string{"path", "include", "lib"}

// Environment is an ordered KEY=VALUE snapshot. Keys compare case-insensitively
// like the Windows environment; the first spelling of a key is kept.
type Environment struct {
	entries []entry
}

type entry struct {
	key   string
	value string
}

// FromOS snapshots the current process environment.
func FromOS() *Environment {
	return New(os.Environ())
}

// New builds an environment from KEY=VALUE strings. Later duplicates win.
func New(environ []string) *Environment {
	env := &Environment{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env.Set(key, value)
	}
	return env
}

func (e *Environment) index(key string) int {
	for i, ent := range e.entries {
		if strings.EqualFold(ent.key, key) {
			return i
		}
	}
	return -1
}

// Get returns the value of key and whether it is set.
func (e *Environment) Get(key string) (string, bool) {
	if i := e.index(key); i >= 0 {
		return e.entries[i].value, true
	}
	return "", false
}

// Set assigns key, keeping the existing spelling when the key is already present.
func (e *Environment) Set(key, value string) {
	if i := e.index(key); i >= 0 {
		e.entries[i].value = value
		return
	}
	e.entries = append(e.entries, entry{key: key, value: value})
}

// Environ returns the environment in exec.Cmd form.
func (e *Environment) Environ() []string {
	out := make([]string, 0, len(e.entries))
	for _, ent := range e.entries {
		out = append(out, ent.key+"="+ent.value)
	}
	return out
}

// Prepend inserts each non-empty entry of paths at the front of key unless the
// value already contains it. Entries are inserted one at a time, so the last
// new entry ends up first. Applying the same paths twice changes nothing.
func (e *Environment) Prepend(key, paths string) {
	current, _ := e.Get(key)
	list := splitList(current)

	changed := false
	for _, candidate := range splitList(paths) {
		if slices.Contains(list, candidate) {
			continue
		}
		list = slices.Insert(list, 0, candidate)
		changed = true
	}
	if !changed {
		return
	}

	e.Set(key, strings.Join(list, string(os.PathListSeparator)))
}

// Configure merges the compiler overlay's path, include and lib values.
// Keys in the overlay are expected lower-cased; other keys are ignored.
func (e *Environment) Configure(overlay map[string]string) {
	for _, key := range ConfiguredKeys {
		value, ok := overlay[key]
		if !ok {
			continue
		}
		e.Prepend(canonicalKey(key), value)
	}
}

func canonicalKey(key string) string {
	if key == "path" {
		return "PATH"
	}
	return strings.ToUpper(key)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(value, string(os.PathListSeparator)) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
