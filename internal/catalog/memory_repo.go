package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"library/internal/entity"
)

// Compile-time assertion: *MemoryRepo satisfies Repository.
var _ Repository = (*MemoryRepo)(nil)

// MemoryRepo implements Repository with Go maps behind a single mutex.
// Every write holds the lock for its whole check-then-mutate sequence, which
// makes Borrow and Return atomic.
type MemoryRepo struct {
	mu           sync.Mutex
	books        map[int64]entity.Book
	users        map[int64]entity.User
	records      map[int64]entity.BorrowRecord
	nextBookID   int64
	nextUserID   int64
	nextRecordID int64
}

// NewMemoryRepo returns an empty MemoryRepo ready for use.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		books:        make(map[int64]entity.Book),
		users:        make(map[int64]entity.User),
		records:      make(map[int64]entity.BorrowRecord),
		nextBookID:   1,
		nextUserID:   1,
		nextRecordID: 1,
	}
}

// EnsureSchema is a no-op for the in-memory store.
func (m *MemoryRepo) EnsureSchema(_ context.Context) error {
	return nil
}

func (m *MemoryRepo) SeedBooks(_ context.Context, books []entity.Book) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.books) > 0 {
		return false, nil
	}
	for _, b := range books {
		m.books[b.ID] = b
		if b.ID >= m.nextBookID {
			m.nextBookID = b.ID + 1
		}
	}
	return true, nil
}

func (m *MemoryRepo) SeedUsers(_ context.Context, users []entity.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) > 0 {
		return false, nil
	}
	for _, u := range users {
		m.users[u.ID] = u
		if u.ID >= m.nextUserID {
			m.nextUserID = u.ID + 1
		}
	}
	return true, nil
}

func (m *MemoryRepo) CreateBook(_ context.Context, b *entity.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextBookID
	m.nextBookID++
	m.books[b.ID] = *b
	return nil
}

func (m *MemoryRepo) CreateUser(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextUserID
	m.nextUserID++
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryRepo) BookExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.books[id]
	return ok, nil
}

func (m *MemoryRepo) UserExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	return ok, nil
}

func (m *MemoryRepo) GetBook(_ context.Context, id int64) (entity.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return entity.Book{}, ErrBookNotFound
	}
	return b, nil
}

func (m *MemoryRepo) GetUser(_ context.Context, id int64) (entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return entity.User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryRepo) GetRecord(_ context.Context, id int64) (entity.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return entity.BorrowRecord{}, ErrRecordNotFound
	}
	return copyRecord(r), nil
}

func (m *MemoryRepo) ListBooks(_ context.Context) ([]entity.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) ListUsers(_ context.Context) ([]entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) ListRecords(_ context.Context, f RecordFilter) ([]entity.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.BorrowRecord, 0, len(m.records))
	for _, r := range m.records {
		if f.BookID != 0 && r.BookID != f.BookID {
			continue
		}
		if f.UserID != 0 && r.UserID != f.UserID {
			continue
		}
		if f.OutstandingOnly && !r.Outstanding() {
			continue
		}
		out = append(out, copyRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) Borrow(_ context.Context, bookID, userID int64, at time.Time) (entity.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[bookID]
	if !ok {
		return entity.BorrowRecord{}, ErrBookNotFound
	}
	if _, ok := m.users[userID]; !ok {
		return entity.BorrowRecord{}, ErrUserNotFound
	}
	if !b.Available {
		return entity.BorrowRecord{}, ErrBookUnavailable
	}

	borrowDate, err := storedTime(at)
	if err != nil {
		return entity.BorrowRecord{}, err
	}
	rec := entity.BorrowRecord{
		ID:         m.nextRecordID,
		BookID:     bookID,
		UserID:     userID,
		BorrowDate: borrowDate,
	}
	m.nextRecordID++

	b.Available = false
	m.books[bookID] = b
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *MemoryRepo) Return(_ context.Context, recordID int64, at time.Time) (entity.BorrowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return entity.BorrowRecord{}, ErrRecordNotFound
	}
	if !rec.Outstanding() {
		return entity.BorrowRecord{}, ErrAlreadyReturned
	}

	returnDate, err := storedTime(at)
	if err != nil {
		return entity.BorrowRecord{}, err
	}
	rec.ReturnDate = &returnDate
	m.records[recordID] = rec

	if b, ok := m.books[rec.BookID]; ok {
		b.Available = true
		m.books[rec.BookID] = b
	}
	return copyRecord(rec), nil
}

// storedTime rounds t to what survives a trip through the timestamp layout,
// so both repositories hand back identical values.
func storedTime(t time.Time) (time.Time, error) {
	return parseTimestamp(formatTimestamp(t))
}

func copyRecord(r entity.BorrowRecord) entity.BorrowRecord {
	if r.ReturnDate != nil {
		d := *r.ReturnDate
		r.ReturnDate = &d
	}
	return r
}
