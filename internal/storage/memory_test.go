package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"assay-backoffice/internal/auth"
)

func TestMemoryStoreRejectsDuplicatePeriod(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	week := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.CreateRate(ctx, newRate("a", week)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := store.CreateRate(ctx, newRate("b", week.Add(3*time.Hour))); !errors.Is(err, ErrDuplicatePeriod) {
		t.Fatalf("same week should collide, got %v", err)
	}
	if _, err := store.CreateRate(ctx, newRate("c", week.AddDate(0, 0, 7))); err != nil {
		t.Fatalf("next week should be accepted: %v", err)
	}
}

func TestMemoryStoreConcurrentInsertsKeepOneRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	week := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.CreateRate(ctx, newRate(string(rune('a'+i)), week)); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if oks != 1 {
		t.Fatalf("expected exactly one successful insert, got %d", oks)
	}
}

func TestMemoryStoreDecideOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutUser(User{ID: "ceo", Name: "Ama", Role: auth.RoleCEO, IsActive: true})
	week := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.CreateRate(ctx, newRate("a", week)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	decision := Decision{Status: StatusApproved, DecidedBy: "ceo", DecidedAt: time.Now()}
	rec, err := store.DecideRate(ctx, "a", decision)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if rec.Status != StatusApproved || rec.ApprovedAt == nil || rec.ApprovedByName == nil || *rec.ApprovedByName != "Ama" {
		t.Fatalf("unexpected decided record %+v", rec)
	}

	if _, err := store.DecideRate(ctx, "a", decision); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second decision should fail with ErrNotPending, got %v", err)
	}
	if _, err := store.DecideRate(ctx, "missing", decision); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing record should fail with ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutItem(Item{ID: "x", Type: RateTypeExchange, Name: "Exchange X"})

	w1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w2 := w1.AddDate(0, 0, 7)
	for _, rec := range []RateRecord{newRate("a", w1), newRate("b", w2)} {
		if _, err := store.CreateRate(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	store.SetStatus("a", StatusApproved)

	all, _ := store.ListRates(ctx, RateFilter{})
	if len(all) != 2 || all[0].ID != "b" {
		t.Fatalf("expected newest week first, got %+v", all)
	}
	if all[0].ItemName != "Exchange X" {
		t.Fatalf("item name not resolved: %q", all[0].ItemName)
	}

	approved, _ := store.ListRates(ctx, RateFilter{ApprovedOnly: true})
	if len(approved) != 1 || approved[0].ID != "a" {
		t.Fatalf("approvedOnly filter broken: %+v", approved)
	}

	byWeek, _ := store.ListRates(ctx, RateFilter{WeekStart: &w2})
	if len(byWeek) != 1 || byWeek[0].ID != "b" {
		t.Fatalf("week filter broken: %+v", byWeek)
	}

	pending, _ := store.CountPending(ctx)
	if pending != 1 {
		t.Fatalf("expected 1 pending, got %d", pending)
	}
}

func TestMemoryStoreUsersByRoles(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.PutUser(User{ID: "1", Name: "B", Role: auth.RoleSuperAdmin, IsActive: true})
	store.PutUser(User{ID: "2", Name: "A", Role: auth.RoleCEO, IsActive: true})
	store.PutUser(User{ID: "3", Name: "C", Role: auth.RoleSuperAdmin, IsActive: false})
	store.PutUser(User{ID: "4", Name: "D", Role: auth.RoleTeller, IsActive: true})

	users, _ := store.ListUsersByRoles(ctx, []auth.Role{auth.RoleSuperAdmin, auth.RoleCEO}, true)
	if len(users) != 2 || users[0].Name != "A" {
		t.Fatalf("unexpected users %+v", users)
	}

	users, _ = store.ListUsersByRoles(ctx, []auth.Role{auth.RoleSuperAdmin}, false)
	if len(users) != 2 {
		t.Fatalf("inactive users should be included when activeOnly=false, got %+v", users)
	}
}

func newRate(id string, week time.Time) RateRecord {
	return RateRecord{
		ID:            id,
		Type:          RateTypeExchange,
		ItemID:        "x",
		Price:         decimal.RequireFromString("12.5"),
		WeekStartDate: week,
		WeekEndDate:   week.AddDate(0, 0, 6),
		Status:        StatusPending,
		SubmittedBy:   "u",
		CreatedAt:     time.Now(),
	}
}
