package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library/internal/entity"
)

// fixedClock hands out strictly increasing times so borrow and return dates
// are distinguishable.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

// runStoreSuite exercises the catalog store contract. newRepo must return an
// empty repository.
func runStoreSuite(t *testing.T, newRepo func(t *testing.T) Repository) {
	seeded := func(t *testing.T) (*Service, *fixedClock) {
		t.Helper()
		clock := newFixedClock()
		svc := NewService(newRepo(t), WithClock(clock.Now))
		require.NoError(t, svc.Init(context.Background()))
		return svc, clock
	}

	t.Run("init seeds defaults once", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		books, err := svc.ListBooks(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultBooks(), books)

		users, err := svc.ListUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, DefaultUsers(), users)

		_, err = svc.AddBook(ctx, "Dune", "Frank Herbert")
		require.NoError(t, err)
		require.NoError(t, svc.Init(ctx))

		books, err = svc.ListBooks(ctx)
		require.NoError(t, err)
		assert.Len(t, books, 6)
	})

	t.Run("added ids do not collide with seeds", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		b, err := svc.AddBook(ctx, "Dune", "Frank Herbert")
		require.NoError(t, err)
		assert.Equal(t, int64(6), b.ID)

		u, err := svc.AddUser(ctx, "Carol White")
		require.NoError(t, err)
		assert.Equal(t, int64(5), u.ID)
	})

	t.Run("add book round trip", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		added, err := svc.AddBook(ctx, "Dune", "Frank Herbert")
		require.NoError(t, err)

		got, err := svc.GetBook(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.Book{ID: added.ID, Title: "Dune", Author: "Frank Herbert", Available: true}, got)

		ok, err := svc.BookExists(ctx, added.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("add user round trip", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		added, err := svc.AddUser(ctx, "Carol White")
		require.NoError(t, err)

		got, err := svc.GetUser(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, "Carol White", got.Name)

		ok, err := svc.UserExists(ctx, added.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = svc.UserExists(ctx, 9999)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("borrow and return scenario", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		rec, err := svc.Borrow(ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.BookID)
		assert.Equal(t, int64(1), rec.UserID)
		assert.True(t, rec.Outstanding())
		assert.False(t, rec.BorrowDate.IsZero())

		book, err := svc.GetBook(ctx, 1)
		require.NoError(t, err)
		assert.False(t, book.Available)

		_, err = svc.Borrow(ctx, 1, 2)
		assert.ErrorIs(t, err, ErrBookUnavailable)

		records, err := svc.ListRecords(ctx, RecordFilter{BookID: 1})
		require.NoError(t, err)
		require.Len(t, records, 1)

		returned, err := svc.Return(ctx, rec.ID)
		require.NoError(t, err)
		require.NotNil(t, returned.ReturnDate)
		assert.True(t, returned.ReturnDate.After(returned.BorrowDate))

		book, err = svc.GetBook(ctx, 1)
		require.NoError(t, err)
		assert.True(t, book.Available)

		stored, err := svc.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, returned, stored)
	})

	t.Run("borrow unknown book", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		_, err := svc.Borrow(ctx, 9999, 1)
		assert.ErrorIs(t, err, ErrBookNotFound)
		assertNoRecords(t, svc)
	})

	t.Run("borrow unknown book is reported before unknown user", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		_, err := svc.Borrow(ctx, 9999, 9999)
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("borrow unknown user", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		_, err := svc.Borrow(ctx, 2, 9999)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assertNoRecords(t, svc)

		book, err := svc.GetBook(ctx, 2)
		require.NoError(t, err)
		assert.True(t, book.Available)
	})

	t.Run("unknown user is reported before unavailable book", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		_, err := svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)

		_, err = svc.Borrow(ctx, 3, 9999)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("return unknown record", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		_, err := svc.Borrow(ctx, 4, 2)
		require.NoError(t, err)
		before, err := svc.ListBooks(ctx)
		require.NoError(t, err)

		_, err = svc.Return(ctx, 9999)
		assert.ErrorIs(t, err, ErrRecordNotFound)

		after, err := svc.ListBooks(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("second return is rejected and leaves other books alone", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		first, err := svc.Borrow(ctx, 1, 1)
		require.NoError(t, err)
		_, err = svc.Return(ctx, first.ID)
		require.NoError(t, err)

		// Book 1 is lent again, then the stale record is returned a second time.
		second, err := svc.Borrow(ctx, 1, 2)
		require.NoError(t, err)
		_, err = svc.Borrow(ctx, 5, 3)
		require.NoError(t, err)

		_, err = svc.Return(ctx, first.ID)
		assert.ErrorIs(t, err, ErrAlreadyReturned)

		book1, err := svc.GetBook(ctx, 1)
		require.NoError(t, err)
		assert.False(t, book1.Available, "book 1 is still out on the second record")

		book5, err := svc.GetBook(ctx, 5)
		require.NoError(t, err)
		assert.False(t, book5.Available)

		open, err := svc.ListRecords(ctx, RecordFilter{OutstandingOnly: true})
		require.NoError(t, err)
		require.Len(t, open, 2)
		assert.Equal(t, second.ID, open[0].ID)
	})

	t.Run("availability matches outstanding records", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		steps := []struct {
			borrow         bool
			bookID, userID int64
		}{
			{true, 1, 1}, {true, 2, 1}, {true, 1, 3}, {true, 3, 4},
			{false, 1, 0}, {true, 1, 2}, {false, 2, 0}, {true, 2, 2},
			{false, 3, 0}, {true, 4, 1}, {true, 3, 3},
		}
		outstanding := map[int64]int64{}
		for _, st := range steps {
			if st.borrow {
				rec, err := svc.Borrow(ctx, st.bookID, st.userID)
				if err != nil {
					assert.ErrorIs(t, err, ErrBookUnavailable)
					continue
				}
				outstanding[st.bookID] = rec.ID
				continue
			}
			recID, ok := outstanding[st.bookID]
			require.True(t, ok)
			_, err := svc.Return(ctx, recID)
			require.NoError(t, err)
			delete(outstanding, st.bookID)
		}

		assertAvailabilityInvariant(t, svc)
	})

	t.Run("list records filters", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		r1, err := svc.Borrow(ctx, 1, 1)
		require.NoError(t, err)
		_, err = svc.Borrow(ctx, 2, 2)
		require.NoError(t, err)
		_, err = svc.Borrow(ctx, 3, 1)
		require.NoError(t, err)
		_, err = svc.Return(ctx, r1.ID)
		require.NoError(t, err)

		byUser, err := svc.ListRecords(ctx, RecordFilter{UserID: 1})
		require.NoError(t, err)
		assert.Len(t, byUser, 2)

		open, err := svc.ListRecords(ctx, RecordFilter{UserID: 1, OutstandingOnly: true})
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, int64(3), open[0].BookID)

		all, err := svc.ListRecords(ctx, RecordFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("concurrent borrows lend a book once", func(t *testing.T) {
		ctx := context.Background()
		svc, _ := seeded(t)

		const workers = 8
		var wg sync.WaitGroup
		errs := make([]error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.Borrow(ctx, 2, int64(i%4)+1)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrBookUnavailable)
		}
		assert.Equal(t, 1, succeeded)
		assertAvailabilityInvariant(t, svc)
	})
}

func assertNoRecords(t *testing.T, svc *Service) {
	t.Helper()
	records, err := svc.ListRecords(context.Background(), RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

// assertAvailabilityInvariant checks that every book is unavailable exactly
// when it has one outstanding record.
func assertAvailabilityInvariant(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()

	books, err := svc.ListBooks(ctx)
	require.NoError(t, err)
	for _, b := range books {
		open, err := svc.ListRecords(ctx, RecordFilter{BookID: b.ID, OutstandingOnly: true})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(open), 1, "book %d has more than one outstanding record", b.ID)
		assert.Equal(t, len(open) == 0, b.Available, "book %d availability disagrees with its records", b.ID)
	}
}
