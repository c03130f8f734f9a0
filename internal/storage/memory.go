package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"assay-backoffice/internal/auth"
)

// MemoryStore keeps rate records and users in process memory. It backs the
// service when no database is configured and is used throughout the tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rates map[string]RateRecord
	users map[string]User
	items map[RateType]map[string]string

	// StatusErr, when set, is returned by RateStatus.
	StatusErr error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rates: make(map[string]RateRecord),
		users: make(map[string]User),
		items: map[RateType]map[string]string{
			RateTypeCommodity: {},
			RateTypeExchange:  {},
		},
	}
}

// PutUser inserts or replaces a user.
func (m *MemoryStore) PutUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// PutItem inserts or replaces an exchange or commodity.
func (m *MemoryStore) PutItem(item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.Type]; !ok {
		m.items[item.Type] = make(map[string]string)
	}
	m.items[item.Type][item.ID] = item.Name
}

// SetStatus overwrites a record's status without any workflow checks.
func (m *MemoryStore) SetStatus(id string, status RateStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.rates[id]; ok {
		rec.Status = status
		m.rates[id] = rec
	}
}

// CreateRate inserts rec, enforcing the (type, item, week) uniqueness.
func (m *MemoryStore) CreateRate(_ context.Context, rec RateRecord) (RateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.rates {
		if samePeriod(existing, rec.Type, rec.ItemID, rec.WeekStartDate) {
			return RateRecord{}, ErrDuplicatePeriod
		}
	}
	m.rates[rec.ID] = rec
	return m.withRelations(rec), nil
}

// FindRateForPeriod returns the record for the (type, item, week) key.
func (m *MemoryStore) FindRateForPeriod(_ context.Context, typ RateType, itemID string, weekStart time.Time) (RateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.rates {
		if samePeriod(rec, typ, itemID, weekStart) {
			return m.withRelations(rec), nil
		}
	}
	return RateRecord{}, ErrNotFound
}

// GetRate loads one record by id.
func (m *MemoryStore) GetRate(_ context.Context, id string) (RateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.rates[id]
	if !ok {
		return RateRecord{}, ErrNotFound
	}
	return m.withRelations(rec), nil
}

// RateStatus reads a record's status.
func (m *MemoryStore) RateStatus(_ context.Context, id string) (RateStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.StatusErr != nil {
		return "", m.StatusErr
	}
	rec, ok := m.rates[id]
	if !ok {
		return "", ErrNotFound
	}
	return rec.Status, nil
}

// ListRates lists records matching filter, newest week first.
func (m *MemoryStore) ListRates(_ context.Context, filter RateFilter) ([]RateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RateRecord, 0)
	for _, rec := range m.rates {
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.ItemID != "" && rec.ItemID != filter.ItemID {
			continue
		}
		if filter.WeekStart != nil && !sameDay(rec.WeekStartDate, *filter.WeekStart) {
			continue
		}
		if filter.ApprovedOnly && rec.Status != StatusApproved {
			continue
		}
		out = append(out, m.withRelations(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekStartDate.Equal(out[j].WeekStartDate) {
			return out[i].WeekStartDate.After(out[j].WeekStartDate)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DecideRate applies decision iff the record is still PENDING.
func (m *MemoryStore) DecideRate(_ context.Context, id string, decision Decision) (RateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rates[id]
	if !ok {
		return RateRecord{}, ErrNotFound
	}
	if rec.Status != StatusPending {
		return RateRecord{}, ErrNotPending
	}

	decidedBy := decision.DecidedBy
	decidedAt := decision.DecidedAt
	rec.Status = decision.Status
	rec.ApprovedBy = &decidedBy
	rec.ApprovedAt = &decidedAt
	rec.RejectionReason = decision.Reason
	m.rates[id] = rec
	return m.withRelations(rec), nil
}

// MarkNotificationSent flags that the submission notification went out.
func (m *MemoryStore) MarkNotificationSent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.rates[id]
	if !ok {
		return ErrNotFound
	}
	rec.NotificationSent = true
	m.rates[id] = rec
	return nil
}

// CountPending counts records awaiting a decision.
func (m *MemoryStore) CountPending(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int64
	for _, rec := range m.rates {
		if rec.Status == StatusPending {
			n++
		}
	}
	return n, nil
}

// GetUser loads one user by id.
func (m *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// ListUsersByRoles lists users holding any of roles, ordered by name.
func (m *MemoryStore) ListUsersByRoles(_ context.Context, roles []auth.Role, activeOnly bool) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := auth.NewRoleSet(roles...)
	out := make([]User, 0)
	for _, u := range m.users {
		if !set.Has(u.Role) {
			continue
		}
		if activeOnly && !u.IsActive {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// withRelations fills the denormalised names. Callers hold the lock.
func (m *MemoryStore) withRelations(rec RateRecord) RateRecord {
	rec.ItemName = m.items[rec.Type][rec.ItemID]
	rec.SubmittedByName = m.users[rec.SubmittedBy].Name
	rec.ApprovedByName = nil
	if rec.ApprovedBy != nil {
		if u, ok := m.users[*rec.ApprovedBy]; ok {
			name := u.Name
			rec.ApprovedByName = &name
		}
	}
	return rec
}

func samePeriod(rec RateRecord, typ RateType, itemID string, weekStart time.Time) bool {
	return rec.Type == typ && rec.ItemID == itemID && sameDay(rec.WeekStartDate, weekStart)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var (
	_ RateStore = (*MemoryStore)(nil)
	_ UserStore = (*MemoryStore)(nil)
)
