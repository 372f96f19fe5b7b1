package catalog

import (
	"context"
	"time"

	"library/internal/entity"
)

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=catalog

// Repository defines the contract for circulation data storage.
// Implementations return the package's rule-violation errors unchanged and
// must apply Borrow and Return atomically.
type Repository interface {
	EnsureSchema(ctx context.Context) error
	SeedBooks(ctx context.Context, books []entity.Book) (bool, error)
	SeedUsers(ctx context.Context, users []entity.User) (bool, error)

	CreateBook(ctx context.Context, b *entity.Book) error
	CreateUser(ctx context.Context, u *entity.User) error

	BookExists(ctx context.Context, id int64) (bool, error)
	UserExists(ctx context.Context, id int64) (bool, error)

	GetBook(ctx context.Context, id int64) (entity.Book, error)
	GetUser(ctx context.Context, id int64) (entity.User, error)
	GetRecord(ctx context.Context, id int64) (entity.BorrowRecord, error)

	ListBooks(ctx context.Context) ([]entity.Book, error)
	ListUsers(ctx context.Context) ([]entity.User, error)
	ListRecords(ctx context.Context, f RecordFilter) ([]entity.BorrowRecord, error)

	Borrow(ctx context.Context, bookID, userID int64, at time.Time) (entity.BorrowRecord, error)
	Return(ctx context.Context, recordID int64, at time.Time) (entity.BorrowRecord, error)
}
