package pages

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Template)
	registryMu sync.RWMutex
)

// RegisterTemplate adds a template to the registry.
// Panics on duplicate template names or duplicate field names.
func RegisterTemplate(t Template) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[t.Name]; exists {
		panic(fmt.Sprintf("template already registered: %s", t.Name))
	}

	seen := make(map[string]bool, len(t.Fields))
	for i, f := range t.Fields {
		if seen[f.Name] {
			panic(fmt.Sprintf("template %s: duplicate field %s", t.Name, f.Name))
		}
		seen[f.Name] = true
		if f.Label == "" {
			t.Fields[i].Label = f.Name
		}
	}
	if t.Label == "" {
		t.Label = t.Name
	}

	registry[t.Name] = t
}

// GetTemplate returns a template by name.
func GetTemplate(name string) (Template, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	t, ok := registry[name]
	return t, ok
}

// Templates returns all registered templates sorted by name.
func Templates() []Template {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Template, 0, len(registry))
	for _, t := range registry {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// ClearTemplates removes all registered templates. Used by tests.
func ClearTemplates() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Template)
}
