package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"library/internal/entity"
)

const (
	logMsgSchemaReady    = "catalog schema ready"
	logMsgSeeded         = "seeded default rows"
	logMsgBookAdded      = "book added"
	logMsgUserAdded      = "user added"
	logMsgBorrowed       = "book borrowed"
	logMsgReturned       = "book returned"
	logMsgRuleViolation  = "request rejected"
	logMsgStorageFailure = "storage operation failed"
	logAttrOperation     = "operation"
	logAttrTable         = "table"
	logAttrCount         = "count"
	logAttrBookID        = "book_id"
	logAttrUserID        = "user_id"
	logAttrRecordID      = "record_id"
	logAttrReason        = "reason"
	logAttrError         = "error"
	opInit               = "init"
	opAddBook            = "add_book"
	opAddUser            = "add_user"
	opBorrow             = "borrow"
	opReturn             = "return"
	opLookup             = "lookup"
)

// Logger receives structured log lines. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Without it the service is silent.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for borrow and return dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSeedDefaults controls whether Init inserts the default books and users.
func WithSeedDefaults(seed bool) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// Service is the catalog store every caller goes through. It validates
// input, stamps times and separates rule violations from storage failures.
type Service struct {
	repo   Repository
	logger Logger
	now    func() time.Time
	seed   bool
}

// NewService creates a new catalog service on top of repo.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		now:  time.Now,
		seed: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init makes sure the schema exists and seeds default books and users into
// empty tables. Running it again on a populated store changes nothing.
func (s *Service) Init(ctx context.Context) error {
	if err := s.repo.EnsureSchema(ctx); err != nil {
		return s.fail(opInit, err)
	}
	s.debug(logMsgSchemaReady)

	if !s.seed {
		return nil
	}

	books := DefaultBooks()
	seeded, err := s.repo.SeedBooks(ctx, books)
	if err != nil {
		return s.fail(opInit, err)
	}
	if seeded {
		s.info(logMsgSeeded, logAttrTable, "books", logAttrCount, len(books))
	}

	users := DefaultUsers()
	seeded, err = s.repo.SeedUsers(ctx, users)
	if err != nil {
		return s.fail(opInit, err)
	}
	if seeded {
		s.info(logMsgSeeded, logAttrTable, "users", logAttrCount, len(users))
	}
	return nil
}

// AddBook stores a new available book and returns it with its assigned id.
func (s *Service) AddBook(ctx context.Context, title, author string) (entity.Book, error) {
	in := bookInput{Title: strings.TrimSpace(title), Author: strings.TrimSpace(author)}
	if errs := validateStruct(in); len(errs) > 0 {
		return entity.Book{}, s.fail(opAddBook, inputError(errs))
	}

	b := entity.Book{Title: in.Title, Author: in.Author, Available: true}
	if err := s.repo.CreateBook(ctx, &b); err != nil {
		return entity.Book{}, s.fail(opAddBook, err)
	}
	s.info(logMsgBookAdded, logAttrBookID, b.ID)
	return b, nil
}

// AddUser stores a new user and returns it with its assigned id.
func (s *Service) AddUser(ctx context.Context, name string) (entity.User, error) {
	in := userInput{Name: strings.TrimSpace(name)}
	if errs := validateStruct(in); len(errs) > 0 {
		return entity.User{}, s.fail(opAddUser, inputError(errs))
	}

	u := entity.User{Name: in.Name}
	if err := s.repo.CreateUser(ctx, &u); err != nil {
		return entity.User{}, s.fail(opAddUser, err)
	}
	s.info(logMsgUserAdded, logAttrUserID, u.ID)
	return u, nil
}

func (s *Service) BookExists(ctx context.Context, id int64) (bool, error) {
	ok, err := s.repo.BookExists(ctx, id)
	if err != nil {
		return false, s.fail(opLookup, err)
	}
	return ok, nil
}

func (s *Service) UserExists(ctx context.Context, id int64) (bool, error) {
	ok, err := s.repo.UserExists(ctx, id)
	if err != nil {
		return false, s.fail(opLookup, err)
	}
	return ok, nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (entity.Book, error) {
	b, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return entity.Book{}, s.classify(err)
	}
	return b, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (entity.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return entity.User{}, s.classify(err)
	}
	return u, nil
}

func (s *Service) GetRecord(ctx context.Context, id int64) (entity.BorrowRecord, error) {
	r, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return entity.BorrowRecord{}, s.classify(err)
	}
	return r, nil
}

func (s *Service) ListBooks(ctx context.Context) ([]entity.Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, s.fail(opLookup, err)
	}
	return books, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]entity.User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, s.fail(opLookup, err)
	}
	return users, nil
}

func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]entity.BorrowRecord, error) {
	records, err := s.repo.ListRecords(ctx, f)
	if err != nil {
		return nil, s.fail(opLookup, err)
	}
	return records, nil
}

// Borrow lends bookID to userID. The book must exist, the user must exist
// and the book must be available, checked in that order. On success the
// book is marked unavailable and an outstanding record is created in one
// transaction.
func (s *Service) Borrow(ctx context.Context, bookID, userID int64) (entity.BorrowRecord, error) {
	rec, err := s.repo.Borrow(ctx, bookID, userID, s.now())
	if err != nil {
		return entity.BorrowRecord{}, s.fail(opBorrow, err, logAttrBookID, bookID, logAttrUserID, userID)
	}
	s.info(logMsgBorrowed, logAttrRecordID, rec.ID, logAttrBookID, bookID, logAttrUserID, userID)
	return rec, nil
}

// Return closes an outstanding record and makes its book available again.
// Returning a record twice fails with ErrAlreadyReturned.
func (s *Service) Return(ctx context.Context, recordID int64) (entity.BorrowRecord, error) {
	rec, err := s.repo.Return(ctx, recordID, s.now())
	if err != nil {
		return entity.BorrowRecord{}, s.fail(opReturn, err, logAttrRecordID, recordID)
	}
	s.info(logMsgReturned, logAttrRecordID, rec.ID, logAttrBookID, rec.BookID)
	return rec, nil
}

// classify passes rule violations through and marks everything else as a
// storage failure.
func (s *Service) classify(err error) error {
	if IsRuleViolation(err) || errors.Is(err, ErrStorage) {
		return err
	}
	return errors.Join(ErrStorage, err)
}

func (s *Service) fail(op string, err error, attrs ...any) error {
	err = s.classify(err)
	if s.logger == nil {
		return err
	}
	args := append([]any{logAttrOperation, op}, attrs...)
	if IsRuleViolation(err) {
		s.logger.Info(logMsgRuleViolation, append(args, logAttrReason, err.Error())...)
	} else {
		s.logger.Error(logMsgStorageFailure, append(args, logAttrError, err.Error())...)
	}
	return err
}

func (s *Service) info(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}

func (s *Service) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
