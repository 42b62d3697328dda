package stats

import (
	"context"
	"sync"
)

// Memory keeps counters in process. Nothing expires.
type Memory struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
}

func NewMemory() *Memory {
	return &Memory{byRoute: make(map[string]Counters)}
}

func (m *Memory) Record(_ context.Context, ev Event) error {
	route := ev.Method + " " + ev.Route

	m.mu.Lock()
	defer m.mu.Unlock()
	m.total.add(ev.Outcome, 1)
	c := m.byRoute[route]
	c.add(ev.Outcome, 1)
	m.byRoute[route] = c
	return nil
}

func (m *Memory) Totals(context.Context) (Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, nil
}

func (m *Memory) ByRoute() map[string]Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Counters, len(m.byRoute))
	for k, v := range m.byRoute {
		out[k] = v
	}
	return out
}
