package comwechat

import (
	"fmt"
	"testing"
	"time"
)

func TestDedupAdmit(t *testing.T) {
	t.Parallel()

	d, err := NewDedup(10, time.Minute)
	if err != nil {
		t.Fatalf("new dedup: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }

	if !d.Admit("1", "1") {
		t.Fatal("first delivery must be admitted")
	}
	if d.Admit("1", "1") {
		t.Fatal("repeat inside ttl must be rejected")
	}
	if !d.Admit("1", "3") {
		t.Fatal("different kind must be admitted")
	}
	if d.Admit("1", "3") {
		t.Fatal("replaced kind must now be the one suppressed")
	}
	now = now.Add(2 * time.Minute)
	if !d.Admit("1", "3") {
		t.Fatal("repeat after ttl must be admitted")
	}
}

func TestDedupEvictsOldest(t *testing.T) {
	t.Parallel()

	d, err := NewDedup(3, time.Hour)
	if err != nil {
		t.Fatalf("new dedup: %v", err)
	}
	for i := 0; i < 4; i++ {
		d.Admit(fmt.Sprint(i), "1")
	}
	// Rejected repeats must not refresh recency.
	d.Admit("1", "1")
	d.Admit("4", "1")
	if d.Len() != 3 {
		t.Fatalf("expected 3 tracked ids, got %d", d.Len())
	}
	if !d.Admit("0", "1") {
		t.Fatal("evicted id must be admitted again")
	}
	if !d.Admit("2", "1") {
		t.Fatal("id 2 should have been evicted after 1")
	}
}

func TestDedupDefaults(t *testing.T) {
	t.Parallel()

	d, err := NewDedup(0, 0)
	if err != nil {
		t.Fatalf("new dedup: %v", err)
	}
	if d.ttl != 120*time.Second {
		t.Fatalf("unexpected default ttl %s", d.ttl)
	}
	for i := 0; i < 250; i++ {
		d.Admit(fmt.Sprint(i), "1")
	}
	if d.Len() != 200 {
		t.Fatalf("expected default capacity 200, got %d", d.Len())
	}
}
