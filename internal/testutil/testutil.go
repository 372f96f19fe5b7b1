package testutil

import (
	"context"
	"testing"
	"time"

	"library/internal/catalog"
)

// Clock returns a time source that starts at a fixed instant and advances
// one minute per call.
func Clock() func() time.Time {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

// NewSeededStore returns an in-memory catalog store holding the default
// books and users.
func NewSeededStore(t testing.TB, opts ...catalog.Option) *catalog.Service {
	t.Helper()
	opts = append([]catalog.Option{catalog.WithClock(Clock())}, opts...)
	svc := catalog.NewService(catalog.NewMemoryRepo(), opts...)
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return svc
}

// AssertAvailabilityConsistent fails t when a book's available flag
// disagrees with its outstanding borrow records.
func AssertAvailabilityConsistent(t testing.TB, svc *catalog.Service) {
	t.Helper()
	ctx := context.Background()

	books, err := svc.ListBooks(ctx)
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	for _, b := range books {
		open, err := svc.ListRecords(ctx, catalog.RecordFilter{BookID: b.ID, OutstandingOnly: true})
		if err != nil {
			t.Fatalf("list records for book %d: %v", b.ID, err)
		}
		if len(open) > 1 {
			t.Errorf("book %d has %d outstanding records", b.ID, len(open))
		}
		if b.Available != (len(open) == 0) {
			t.Errorf("book %d available=%v with %d outstanding records", b.ID, b.Available, len(open))
		}
	}
}
