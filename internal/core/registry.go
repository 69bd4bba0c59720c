package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc executes one job. Any returned error becomes the job's
// single failure result; a returned output may carry partial results
// alongside an error.
type HandlerFunc func(ctx context.Context, job JobDescriptor, report ProgressFunc) (*JobOutput, error)

// JobDefinition binds a job kind to its handler and the executor
// category it runs in. Each category gets one isolated executor
// goroutine, so jobs within a category never run concurrently.
type JobDefinition struct {
	Kind     JobKind
	Category string
	Handler  HandlerFunc
}

var (
	registry   = make(map[JobKind]JobDefinition)
	registryMu sync.RWMutex
)

// Register adds a job definition to the registry.
// Panics if the kind is already registered.
func Register(def JobDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Kind]; exists {
		panic(fmt.Sprintf("job kind already registered: %s", def.Kind))
	}
	if def.Category == "" {
		def.Category = "default"
	}
	registry[def.Kind] = def
}

// Lookup returns a job definition by kind.
// Returns false if not registered.
func Lookup(kind JobKind) (JobDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[kind]
	return def, ok
}

// Definitions returns all registered job definitions, sorted by
// category then kind for consistent ordering.
func Definitions() []JobDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]JobDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Kind < result[j].Kind
	})

	return result
}

// Categories returns all unique executor categories, sorted.
func Categories() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, def := range registry {
		seen[def.Category] = true
	}

	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}

	sort.Strings(categories)
	return categories
}

// ClearRegistry removes all registered job definitions.
// Primarily useful for testing.
func ClearRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[JobKind]JobDefinition)
}
