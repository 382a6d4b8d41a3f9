// Package allocator packs tenants into a bounded number of shared databases.
package allocator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenancy/catalog"
	"github.com/ChenBigdata421/jxt-tenancy/sdk/pkg/tenant"
)

const (
	// DefaultCapacity is the number of tenants packed into one shared database.
	DefaultCapacity = 2
	// DefaultDatabaseBase is the name stem of shared databases ("tenants0", "tenants1", ...).
	DefaultDatabaseBase = "tenants"
	// LockName guards the list-inspect-decide-persist sequence.
	LockName = "allocation"
)

// Inspector reads a fresh snapshot of the shared databases.
type Inspector interface {
	Inspect(ctx context.Context) (catalog.Snapshot, error)
}

// Ledger reports placements that are persisted but whose tables may not
// exist yet. A tenant is recorded inside the allocation lock while its
// tables only appear once its migrations run, so the catalog alone lags
// behind.
type Ledger interface {
	// LatestPlacement returns the greatest shared database holding a
	// recorded tenant together with the greatest prefix used in it, or nil.
	LatestPlacement(ctx context.Context) (*tenant.Assignment, error)
}

// RecordFunc persists an assignment while the allocation lock is held.
type RecordFunc func(ctx context.Context, t *tenant.Tenant, a tenant.Assignment) error

// Plan is the outcome of one allocation decision.
type Plan struct {
	DatabaseIndex int
	Prefix        int
}

// Allocator decides which shared database and table prefix a new tenant gets.
// It keeps no state between calls; every decision starts from a new catalog
// read.
type Allocator struct {
	inspector Inspector
	ledger    Ledger
	locker    Locker
	capacity  int
	base      string
	logger    *zap.Logger
}

type Option func(*Allocator)

// WithCapacity sets the number of tenants per shared database.
func WithCapacity(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithDatabaseBase sets the name stem of shared databases.
func WithDatabaseBase(base string) Option {
	return func(a *Allocator) {
		if base != "" {
			a.base = base
		}
	}
}

// WithLedger merges persisted placements into every catalog read.
func WithLedger(l Ledger) Option {
	return func(a *Allocator) { a.ledger = l }
}

// WithLocker replaces the default in-process locker.
func WithLocker(l Locker) Option {
	return func(a *Allocator) {
		if l != nil {
			a.locker = l
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

func New(inspector Inspector, opts ...Option) *Allocator {
	a := &Allocator{
		inspector: inspector,
		locker:    NewLocalLocker(),
		capacity:  DefaultCapacity,
		base:      DefaultDatabaseBase,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) Capacity() int {
	return a.capacity
}

// DatabaseName renders the shared database name for an index.
func (a *Allocator) DatabaseName(index int) string {
	return a.base + strconv.Itoa(index)
}

// IsLastDatabaseFull reports whether the most recent shared database holds
// Capacity distinct tenants. It is false when no shared database exists.
func (a *Allocator) IsLastDatabaseFull(ctx context.Context) (bool, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return false, err
	}
	return a.lastFull(snap), nil
}

// NextPrefix returns the table prefix the next tenant will use.
func (a *Allocator) NextPrefix(ctx context.Context) (int, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return a.Decide(snap).Prefix, nil
}

// NextDatabaseIndex returns the index of the shared database the next tenant
// will be stored in.
func (a *Allocator) NextDatabaseIndex(ctx context.Context) (int, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return a.Decide(snap).DatabaseIndex, nil
}

// Decide computes the placement for the next tenant from a snapshot.
//
// No shared database yet: index 0, prefix 1. Last database full: its numeric
// suffix plus one, prefix 1. Otherwise keep packing the last database with the
// next free prefix.
func (a *Allocator) Decide(snap catalog.Snapshot) Plan {
	if snap.Last == nil {
		return Plan{DatabaseIndex: 0, Prefix: 1}
	}
	suffix := NumericSuffix(snap.Last.Name)
	if a.lastFull(snap) {
		return Plan{DatabaseIndex: suffix + 1, Prefix: 1}
	}
	return Plan{DatabaseIndex: suffix, Prefix: snap.Last.TenantCount + 1}
}

// A count above capacity only happens with tables created outside the
// allocator; it is treated as full so prefixes stay within [1, capacity].
func (a *Allocator) lastFull(snap catalog.Snapshot) bool {
	return snap.Last != nil && snap.Last.TenantCount >= a.capacity
}

// snapshot reads the catalog and, with a ledger, lets recorded placements
// raise what the catalog shows: a later database wins and the occupied
// count of the last database is at least its greatest recorded prefix.
func (a *Allocator) snapshot(ctx context.Context) (catalog.Snapshot, error) {
	snap, err := a.inspector.Inspect(ctx)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("inspect shared databases: %w", err)
	}
	if a.ledger == nil {
		return snap, nil
	}
	placed, err := a.ledger.LatestPlacement(ctx)
	if err != nil {
		return catalog.Snapshot{}, fmt.Errorf("read recorded placements: %w", err)
	}
	return Reconcile(snap, placed), nil
}

// Reconcile merges a recorded placement into a catalog snapshot. Database
// names compare the way the catalog orders them.
func Reconcile(snap catalog.Snapshot, placed *tenant.Assignment) catalog.Snapshot {
	if placed == nil || placed.Database == "" {
		return snap
	}
	switch {
	case snap.Last == nil || placed.Database > snap.Last.Name:
		snap.Databases = append(append([]string(nil), snap.Databases...), placed.Database)
		snap.Last = &catalog.SharedDatabase{Name: placed.Database, TenantCount: placed.Prefix}
	case placed.Database == snap.Last.Name && placed.Prefix > snap.Last.TenantCount:
		last := *snap.Last
		last.TenantCount = placed.Prefix
		snap.Last = &last
	}
	return snap
}

// Assign runs the whole allocation under the allocation lock: inspect the
// catalog and the ledger, decide, then hand the assignment to record for
// persistence. Without a ledger, record must make the slot visible to the
// catalog before it returns. A tenant without key material gets a fresh
// random key.
func (a *Allocator) Assign(ctx context.Context, t *tenant.Tenant, record RecordFunc) (tenant.Assignment, error) {
	lease, err := a.locker.Obtain(ctx, LockName)
	if err != nil {
		return tenant.Assignment{}, fmt.Errorf("obtain %s lock: %w", LockName, err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			a.logger.Warn("release allocation lock failed", zap.Error(err))
		}
	}()

	snap, err := a.snapshot(ctx)
	if err != nil {
		return tenant.Assignment{}, err
	}
	plan := a.Decide(snap)

	assignment := tenant.Assignment{
		Database: a.DatabaseName(plan.DatabaseIndex),
		Prefix:   plan.Prefix,
		TheKey:   t.TheKey,
	}
	if assignment.TheKey == "" {
		assignment.TheKey = NewKey()
	}

	if record != nil {
		if err := record(ctx, t, assignment); err != nil {
			return tenant.Assignment{}, err
		}
	}

	a.logger.Info("tenant allocated to shared database",
		zap.Int("tenant_id", t.ID),
		zap.String("database", assignment.Database),
		zap.Int("prefix", assignment.Prefix))
	return assignment, nil
}

// NumericSuffix keeps the digits of a database name and parses them. A name
// without digits yields 0.
func NumericSuffix(name string) int {
	var b strings.Builder
	for _, r := range name {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0
	}
	return n
}

// NewKey returns random key material for a tenant.
func NewKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
