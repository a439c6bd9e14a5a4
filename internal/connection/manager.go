// Package connection owns the lifecycle of a host engine: it opens it,
// migrates its topology to match the schema, and gates every request on
// that provisioning having finished.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	arkerrors "github.com/arkilian/arkdb/internal/errors"
	"github.com/arkilian/arkdb/pkg/hostdb"
	"github.com/arkilian/arkdb/pkg/schema"
	"github.com/arkilian/arkdb/pkg/types"
)

// Options configures a Manager.
type Options struct {
	// Name identifies the database in logs and export metadata.
	Name string

	// Version is the minimum topology version to provision. Zero lets the
	// manager bump the stored version only when the topology changed.
	Version int
}

// Manager provisions a host engine and hands it to the query layer once
// ready.
type Manager struct {
	engine hostdb.Engine
	opts   Options
	gate   *Gate

	migrateMu sync.Mutex // serializes DropTable

	mu       sync.RWMutex
	schema   *schema.Schema
	topology types.Topology
	keyPaths map[string]string // table → primary key path
}

// Open derives the topology from s and starts provisioning engine in the
// background. Schema errors are returned immediately; provisioning errors
// are reported by Ready.
func Open(ctx context.Context, engine hostdb.Engine, s *schema.Schema, opts Options) (*Manager, error) {
	if engine == nil {
		return nil, arkerrors.NewHostUnavailableError("no host engine configured", nil)
	}
	if s == nil {
		return nil, arkerrors.NewSchemaError("", "schema is required")
	}
	topo, err := s.Topology()
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = "arkdb"
	}

	m := &Manager{
		engine:   engine,
		opts:     opts,
		gate:     NewGate(),
		schema:   s,
		topology: topo,
		keyPaths: keyPathsOf(topo),
	}
	go m.provision(context.WithoutCancel(ctx))
	return m, nil
}

func keyPathsOf(topo types.Topology) map[string]string {
	out := make(map[string]string, len(topo))
	for _, c := range topo {
		out[c.Name] = c.PrimaryKeyPath
	}
	return out
}

func (m *Manager) provision(ctx context.Context) {
	err := m.initialize(ctx)
	if err != nil {
		log.Printf("connection: [WARN] provisioning %s failed: %v", m.opts.Name, err)
	}
	m.gate.Resolve(err)
}

func (m *Manager) initialize(ctx context.Context) error {
	if err := m.engine.Open(ctx); err != nil {
		return arkerrors.NewHostUnavailableError(fmt.Sprintf("failed to open host engine for %s", m.opts.Name), err)
	}

	current := m.engine.Version()
	if m.opts.Version > 0 && m.opts.Version < current {
		return arkerrors.Wrap(arkerrors.ErrCategoryHost, arkerrors.CodeVersion,
			fmt.Sprintf("requested version %d is older than stored version %d", m.opts.Version, current), hostdb.ErrVersion)
	}

	report, err := Reconcile(m.engine.Topology(), m.Topology())
	if err != nil {
		return err
	}
	if !report.HasChanges() && current > 0 && m.opts.Version <= current {
		log.Printf("connection: %s ready at version %d", m.opts.Name, current)
		return nil
	}

	target := current + 1
	if m.opts.Version > target {
		target = m.opts.Version
	}
	if err := m.migrate(ctx, target, m.Topology()); err != nil {
		return err
	}
	log.Printf("connection: %s migrated from version %d to %d (%s)", m.opts.Name, current, target, report)
	return nil
}

// migrate runs one host upgrade that brings storage to desired.
func (m *Manager) migrate(ctx context.Context, version int, desired types.Topology) error {
	err := m.engine.Upgrade(ctx, version, func(ctx context.Context, mig hostdb.Migrator, _, _ int) error {
		report, err := Reconcile(mig.Topology(), desired)
		if err != nil {
			return err
		}
		return report.Apply(mig)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hostdb.ErrVersion):
		return arkerrors.Wrap(arkerrors.ErrCategoryHost, arkerrors.CodeVersion,
			fmt.Sprintf("upgrade to version %d rejected", version), err)
	case errors.Is(err, hostdb.ErrUnavailable):
		return arkerrors.NewHostUnavailableError("host engine unavailable during upgrade", err)
	}
	return fmt.Errorf("connection: upgrade to version %d failed: %w", version, err)
}

// Ready blocks until provisioning has finished and returns its outcome.
func (m *Manager) Ready(ctx context.Context) error {
	return m.gate.Wait(ctx)
}

// Engine returns the underlying host engine.
func (m *Manager) Engine() hostdb.Engine { return m.engine }

// Name returns the database name.
func (m *Manager) Name() string { return m.opts.Name }

// Version returns the stored topology version.
func (m *Manager) Version() int { return m.engine.Version() }

// Schema returns the current schema.
func (m *Manager) Schema() *schema.Schema {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schema
}

// Topology returns a copy of the desired topology.
func (m *Manager) Topology() types.Topology {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(types.Topology, len(m.topology))
	for i, c := range m.topology {
		c.Indexes = append([]types.IndexDescriptor{}, c.Indexes...)
		out[i] = c
	}
	return out
}

// Table returns a table's declaration and host descriptor.
func (m *Manager) Table(name string) (*schema.Table, types.CollectionDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.schema.Table(name)
	if !ok {
		return nil, types.CollectionDescriptor{}, arkerrors.NewTableNotFoundError(name)
	}
	desc, ok := m.topology.Collection(name)
	if !ok {
		return nil, types.CollectionDescriptor{}, arkerrors.NewTableNotFoundError(name)
	}
	return t, desc, nil
}

// KeyPath returns the primary key path of a table.
func (m *Manager) KeyPath(table string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path, ok := m.keyPaths[table]
	if !ok {
		return "", arkerrors.NewTableNotFoundError(table)
	}
	return path, nil
}

// DropTable deletes a table's collection and all its records through a
// version bump, then forgets the table.
func (m *Manager) DropTable(ctx context.Context, name string) error {
	if err := m.Ready(ctx); err != nil {
		return err
	}
	m.migrateMu.Lock()
	defer m.migrateMu.Unlock()

	current := m.Schema()
	if _, ok := current.Table(name); !ok {
		return arkerrors.NewTableNotFoundError(name)
	}
	next := current.Without(name)
	topo, err := next.Topology()
	if err != nil {
		return err
	}

	version := m.engine.Version() + 1
	if err := m.migrate(ctx, version, topo); err != nil {
		return err
	}

	m.mu.Lock()
	m.schema = next
	m.topology = topo
	delete(m.keyPaths, name)
	m.mu.Unlock()

	log.Printf("connection: dropped table %s from %s (version %d)", name, m.opts.Name, version)
	return nil
}

// Close waits for provisioning to settle and closes the engine.
func (m *Manager) Close() error {
	<-m.gate.done
	return m.engine.Close()
}
