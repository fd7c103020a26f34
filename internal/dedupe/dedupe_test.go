package dedupe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_ClaimOnce(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()

	first, err := m.Claim(ctx, "wamid.1")
	if err != nil || !first {
		t.Fatalf("first claim: %v %v", first, err)
	}
	again, err := m.Claim(ctx, "wamid.1")
	if err != nil || again {
		t.Fatalf("second claim should report seen, got %v %v", again, err)
	}
	other, _ := m.Claim(ctx, "wamid.2")
	if !other {
		t.Error("distinct key should be claimable")
	}
}

func TestMemory_Release(t *testing.T) {
	m := NewMemory(time.Hour)
	ctx := context.Background()
	m.Claim(ctx, "k")
	if err := m.Release(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := m.Claim(ctx, "k"); !ok {
		t.Error("released key should be claimable again")
	}
}

func TestMemory_Expiry(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Claim(context.Background(), "k")
	now = now.Add(2 * time.Minute)
	ok, _ := m.Claim(context.Background(), "k")
	if !ok {
		t.Error("expired key should be claimable again")
	}
}

func TestMemory_SweepDropsExpired(t *testing.T) {
	m := NewMemory(time.Second)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 1000; i++ {
		m.Claim(context.Background(), fmt.Sprintf("old-%d", i))
	}
	now = now.Add(time.Minute)
	for i := 0; i < 24; i++ {
		m.Claim(context.Background(), fmt.Sprintf("new-%d", i))
	}
	if m.Len() > 24 {
		t.Errorf("expected expired ids swept, have %d", m.Len())
	}
}

func TestMemory_EmptyKey(t *testing.T) {
	_, err := NewMemory(0).Claim(context.Background(), "")
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestMemory_ConcurrentClaimsSingleWinner(t *testing.T) {
	m := NewMemory(time.Hour)
	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Claim(context.Background(), "same"); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d", winners)
	}
}

func TestNewRedis_Validation(t *testing.T) {
	if _, err := NewRedis(RedisConfig{}); err == nil {
		t.Error("expected error for missing addr")
	}
	s, err := NewRedis(RedisConfig{Addr: "127.0.0.1:6379"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.key("wamid.1") != "frontdesk:dedupe:wamid.1" {
		t.Errorf("unexpected key %q", s.key("wamid.1"))
	}
	if s.ttl != DefaultTTL {
		t.Errorf("expected default ttl, got %v", s.ttl)
	}
	if _, err := s.Claim(context.Background(), ""); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}
