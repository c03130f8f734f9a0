package storage

import (
	"context"
	"testing"
)

func TestParseRateType(t *testing.T) {
	got, err := ParseRateType(" exchange ")
	if err != nil || got != RateTypeExchange {
		t.Fatalf("ParseRateType = %q, %v", got, err)
	}
	if _, err := ParseRateType("gold"); err == nil {
		t.Fatal("unknown type should fail")
	}
}

func TestStoreWithoutPool(t *testing.T) {
	var s *Store
	if _, err := s.GetRate(context.Background(), "x"); err != ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	s.Close()
}
