package subscription

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResourceStatus is the lifecycle state of a managed resource.
type ResourceStatus string

const (
	ResourceActive   ResourceStatus = "active"
	ResourceArchived ResourceStatus = "archived"
)

// ManagedResource is a tenant-owned item counted against the plan limit.
type ManagedResource struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Status    ResourceStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// MemoryStore is an in-process ProfileStore and ResourceStore. It backs tests
// and single-instance deployments without a database.
type MemoryStore struct {
	mu         sync.RWMutex
	profiles   map[uuid.UUID]BillingProfile
	byCustomer map[string]uuid.UUID
	resources  map[uuid.UUID][]ManagedResource
	now        func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[uuid.UUID]BillingProfile),
		byCustomer: make(map[string]uuid.UUID),
		resources:  make(map[uuid.UUID][]ManagedResource),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Get(_ context.Context, tenantID uuid.UUID) (*BillingProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[tenantID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *MemoryStore) GetByCustomerID(_ context.Context, customerID string) (*BillingProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenantID, ok := m.byCustomer[customerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	p := m.profiles[tenantID]
	return &p, nil
}

func (m *MemoryStore) BindCustomer(_ context.Context, tenantID uuid.UUID, customerID string, free PlanID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.load(tenantID, free)
	p = ProfileChange{CustomerID: &customerID}.ApplyTo(p, m.now())
	m.store(p)
	return p.CustomerID, nil
}

func (m *MemoryStore) Apply(_ context.Context, tenantID uuid.UUID, change ProfileChange, free PlanID) (*BillingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := change.ApplyTo(m.load(tenantID, free), m.now())
	m.store(p)
	return &p, nil
}

func (m *MemoryStore) ApplyByCustomerID(_ context.Context, customerID string, change ProfileChange) (*BillingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tenantID, ok := m.byCustomer[customerID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	p := change.ApplyTo(m.profiles[tenantID], m.now())
	m.store(p)
	return &p, nil
}

func (m *MemoryStore) Each(_ context.Context, fn func(BillingProfile) error) error {
	m.mu.RLock()
	profiles := make([]BillingProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		profiles = append(profiles, p)
	}
	m.mu.RUnlock()

	for _, p := range profiles {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) load(tenantID uuid.UUID, free PlanID) BillingProfile {
	if p, ok := m.profiles[tenantID]; ok {
		return p
	}
	return DefaultProfile(tenantID, free)
}

func (m *MemoryStore) store(p BillingProfile) {
	m.profiles[p.TenantID] = p
	if p.CustomerID != "" {
		m.byCustomer[p.CustomerID] = p.TenantID
	}
}

// AddResource records an active resource created at the given time.
func (m *MemoryStore) AddResource(tenantID uuid.UUID, createdAt time.Time) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.resources[tenantID] = append(m.resources[tenantID], ManagedResource{
		ID:        id,
		TenantID:  tenantID,
		Status:    ResourceActive,
		CreatedAt: createdAt,
	})
	return id
}

// Resources returns a snapshot of the tenant's resources.
func (m *MemoryStore) Resources(tenantID uuid.UUID) []ManagedResource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.resources[tenantID])
}

func (m *MemoryStore) CountActive(_ context.Context, tenantID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, r := range m.resources[tenantID] {
		if r.Status == ResourceActive {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ArchiveNewest(_ context.Context, tenantID uuid.UUID, n int64) ([]uuid.UUID, error) {
	if n <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, archived := m.archiveNewest(tenantID, func(int64) int64 { return n })
	return archived, nil
}

// ArchiveOverLimit implements OverLimitArchiver.
func (m *MemoryStore) ArchiveOverLimit(_ context.Context, tenantID uuid.UUID, limit int64) (int64, []uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, archived := m.archiveNewest(tenantID, func(active int64) int64 { return active - limit })
	return count, archived, nil
}

// archiveNewest archives up to want(active) of the tenant's newest active
// resources. Callers hold the write lock.
func (m *MemoryStore) archiveNewest(tenantID uuid.UUID, want func(active int64) int64) (int64, []uuid.UUID) {
	rs := m.resources[tenantID]
	active := make([]int, 0, len(rs))
	for i, r := range rs {
		if r.Status == ResourceActive {
			active = append(active, i)
		}
	}
	count := int64(len(active))
	n := min(count, want(count))
	if n <= 0 {
		return count, nil
	}

	slices.SortStableFunc(active, func(a, b int) int {
		return cmp.Compare(rs[b].CreatedAt.UnixNano(), rs[a].CreatedAt.UnixNano())
	})
	archived := make([]uuid.UUID, 0, n)
	for _, i := range active[:n] {
		rs[i].Status = ResourceArchived
		archived = append(archived, rs[i].ID)
	}
	return count, archived
}
