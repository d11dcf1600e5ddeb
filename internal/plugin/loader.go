// Package plugin implements the Plugin Loader (C11). This
// implementation ships every executor statically linked, so Load
// registers the executors of caller-supplied factory functions rather
// than scanning a directory for artifacts — the spec explicitly allows
// this when an implementation does not need a dynamic artifact format.
package plugin

import (
	"log"

	"github.com/flowforge/enginecore/internal/registry"
)

// Factory builds the set of executors one "artifact" contributes. In
// a statically-linked build, an artifact is just a function the host
// passes to New that returns its executors.
type Factory func() []registry.Executor

// Loader registers the executors that factories provide, routing
// collisions to a warning-and-override per the spec's collision rule.
type Loader struct {
	reg       *registry.Registry
	factories []Factory
}

func New(reg *registry.Registry, factories ...Factory) *Loader {
	return &Loader{reg: reg, factories: factories}
}

// Load registers every factory's executors. Safe to call once at
// startup.
func (l *Loader) Load() error {
	return l.Reload()
}

// Reload re-registers every factory's executors, overriding any
// already-registered node type and logging the collision.
func (l *Loader) Reload() error {
	for _, factory := range l.factories {
		for _, exec := range factory() {
			if l.reg.Has(exec.NodeType()) {
				log.Printf("plugin: overriding existing registration for node type %q", exec.NodeType())
				l.reg.Unregister(exec.NodeType())
			}
			if err := l.reg.Register(exec); err != nil {
				log.Printf("plugin: failed to register %q: %v", exec.NodeType(), err)
			}
		}
	}
	return nil
}
