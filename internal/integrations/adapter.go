package integrations

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lineplan/internal/orders"
)

// OrderAdapter is an order source integration, such as a CSV export or an ERP feed.
type OrderAdapter interface {
	Name() string
	Records(ctx context.Context) ([]orders.Record, error)
}

var (
	mu       sync.RWMutex
	adapters = map[string]OrderAdapter{}
)

// Register makes an adapter available by name. Registering a name twice replaces it.
func Register(a OrderAdapter) {
	mu.Lock()
	adapters[a.Name()] = a
	mu.Unlock()
}

// Lookup returns the adapter registered under name.
func Lookup(name string) (OrderAdapter, error) {
	mu.RLock()
	defer mu.RUnlock()
	a, ok := adapters[name]
	if !ok {
		return nil, fmt.Errorf("integrations: no adapter %q", name)
	}
	return a, nil
}

// Names lists registered adapters.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(adapters))
	for n := range adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
