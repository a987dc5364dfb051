package gamemodule

import (
	"fmt"
	"regexp"
	"slices"
	"sync"
)

// Factory returns a new instance of a module
type Factory func() Module

var idPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

var registry = struct {
	sync.RWMutex
	factories map[string]Factory
	aliases   map[string]string
}{
	factories: make(map[string]Factory),
	aliases:   make(map[string]string),
}

// Register makes a module available under id. It is meant to be called from
// init and panics on an invalid or duplicate id.
func Register(id string, f Factory) {
	registry.Lock()
	defer registry.Unlock()
	if !idPattern.MatchString(id) {
		panic(fmt.Sprintf("gamemodule: invalid module id %q", id))
	}
	if _, dup := registry.factories[id]; dup {
		panic(fmt.Sprintf("gamemodule: Register called twice for %q", id))
	}
	registry.factories[id] = f
}

// Alias makes alias resolve to the module registered as id
func Alias(alias, id string) {
	registry.Lock()
	defer registry.Unlock()
	if !idPattern.MatchString(alias) {
		panic(fmt.Sprintf("gamemodule: invalid module alias %q", alias))
	}
	registry.aliases[alias] = id
}

// Resolve returns the canonical id for id or one of its aliases
func Resolve(id string) (string, error) {
	registry.RLock()
	defer registry.RUnlock()
	if target, ok := registry.aliases[id]; ok {
		id = target
	}
	if _, ok := registry.factories[id]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModule, id)
	}
	return id, nil
}

// Lookup returns a fresh instance of the module registered as id
func Lookup(id string) (Module, error) {
	canonical, err := Resolve(id)
	if err != nil {
		return nil, err
	}
	registry.RLock()
	f := registry.factories[canonical]
	registry.RUnlock()
	return f(), nil
}

// IDs returns the registered module ids in sorted order, without aliases
func IDs() []string {
	registry.RLock()
	defer registry.RUnlock()
	ids := make([]string, 0, len(registry.factories))
	for id := range registry.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
