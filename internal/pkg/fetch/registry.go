package fetch

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/akovalev/minutecast/internal/pkg/config"
)

// Factory builds one adapter over the shared transport.
type Factory func(cfg *config.Config, tr *Transport) Adapter

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an adapter available by name. Adapter packages call it from
// init; import the fetch/all package for the full set.
func Register(name string, f Factory) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		panic("fetch: empty name in Register")
	}
	if f == nil {
		panic("fetch: nil factory in Register for " + n)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[n]; exists {
		panic("fetch: duplicate registration for " + n)
	}
	registry[n] = f
}

func FactoryByName(name string) (Factory, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[n]
	return f, ok
}

func AvailableNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Chain instantiates the adapters named in config, preserving their order;
// that order is the fallback priority.
func Chain(cfg *config.Config, tr *Transport) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(cfg.Scraper.Adapters))
	for _, name := range cfg.Scraper.Adapters {
		f, ok := FactoryByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown adapter %q (available: %v)", name, AvailableNames())
		}
		adapters = append(adapters, f(cfg, tr))
	}
	return adapters, nil
}
