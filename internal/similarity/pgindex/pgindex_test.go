package pgindex

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/linnemanlabs/sentinel/internal/postgres"
	"github.com/linnemanlabs/sentinel/internal/similarity"
)

// openIndex connects to SENTINEL_TEST_DATABASE_URL, skipping when unset.
func openIndex(t *testing.T) *Index {
	t.Helper()
	url := os.Getenv("SENTINEL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SENTINEL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)

	idx, err := New(ctx, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return idx
}

func TestIndex_AddSearchCount(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("T%d-", time.Now().UnixNano())
	tickets := []similarity.Ticket{
		{ID: prefix + "1", Title: "Checkout fails on Safari with discount code zqxw", Description: "blank page"},
		{ID: prefix + "2", Title: "Unrelated dashboard chart bug", Description: "firefox canvas"},
	}
	before, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if err := idx.Add(ctx, tickets); err != nil {
		t.Fatalf("Add: %v", err)
	}
	after, _ := idx.Count(ctx)
	if after != before+2 {
		t.Errorf("Count = %d, want %d", after, before+2)
	}

	got, err := idx.Search(ctx, tickets[0].Document(), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].ID != tickets[0].ID {
		t.Fatalf("got %+v, want %s", got, tickets[0].ID)
	}
	if got[0].Distance < 0 || got[0].Distance > 0.01 {
		t.Errorf("distance = %v, want ~0", got[0].Distance)
	}

	// re-adding is an upsert
	if err := idx.Add(ctx, tickets[:1]); err != nil {
		t.Fatalf("re-Add: %v", err)
	}
	if n, _ := idx.Count(ctx); n != after {
		t.Errorf("Count after upsert = %d, want %d", n, after)
	}
}
