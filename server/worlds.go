package main

import (
	"sort"
	"sync"
)

// WorldManager owns the named world instances of the server
type WorldManager struct {
	mu          sync.RWMutex
	worlds      map[string]*World
	defaultName string
	maxWorlds   int
	opts        WorldOptions
}

// NewWorldManager creates the manager and starts its default world
func NewWorldManager(defaultName string, maxWorlds int, opts WorldOptions) *WorldManager {
	m := &WorldManager{
		worlds:      make(map[string]*World),
		defaultName: defaultName,
		maxWorlds:   maxWorlds,
		opts:        opts,
	}
	m.GetOrCreate(defaultName)
	return m
}

// Get returns the named world, or nil. An empty name selects the default world.
func (m *WorldManager) Get(name string) *World {
	if name == "" {
		name = m.defaultName
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.worlds[name]
}

// GetOrCreate returns the named world, starting it if needed. Returns nil if the limit is reached.
func (m *WorldManager) GetOrCreate(name string) *World {
	if name == "" {
		name = m.defaultName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.worlds[name]; ok {
		return w
	}
	if m.maxWorlds > 0 && len(m.worlds) >= m.maxWorlds {
		return nil
	}
	w := NewWorld(name, m.opts)
	m.worlds[name] = w
	go w.Run()
	return w
}

// List returns a stats snapshot of every world, sorted by name
func (m *WorldManager) List() []WorldStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]WorldStats, 0, len(m.worlds))
	for _, w := range m.worlds {
		list = append(list, w.Stats())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// StopAll stops every world loop
func (m *WorldManager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.worlds {
		w.Stop()
	}
}
