package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"library/internal/entity"
	"library/internal/platform/postgres"
)

const (
	tableBooks   = "books"
	tableUsers   = "users"
	tableRecords = "borrow_records"

	colBookID     = "book_id"
	colTitle      = "title"
	colAuthor     = "author"
	colAvailable  = "available"
	colUserID     = "user_id"
	colName       = "name"
	colRecordID   = "record_id"
	colBorrowDate = "borrow_date"
	colReturnDate = "return_date"

	pgUniqueViolation         = "23505"
	outstandingBookConstraint = "uq_borrow_records_outstanding_book"
)

var dialect = goqu.Dialect("postgres")

var _ Repository = (*PostgresRepo)(nil)

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// EnsureSchema applies the embedded migrations.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	return postgres.Migrate(ctx, r.db)
}

func (r *PostgresRepo) SeedBooks(ctx context.Context, books []entity.Book) (bool, error) {
	rows := make([][]any, len(books))
	for i, b := range books {
		rows[i] = []any{b.ID, b.Title, b.Author, b.Available}
	}
	return r.seed(ctx, tableBooks, colBookID, []string{colBookID, colTitle, colAuthor, colAvailable}, rows)
}

func (r *PostgresRepo) SeedUsers(ctx context.Context, users []entity.User) (bool, error) {
	rows := make([][]any, len(users))
	for i, u := range users {
		rows[i] = []any{u.ID, u.Name}
	}
	return r.seed(ctx, tableUsers, colUserID, []string{colUserID, colName}, rows)
}

// seed copies rows into an empty table and moves the id sequence past them
// so later inserts get fresh ids. A table that already has rows is left alone.
func (r *PostgresRepo) seed(ctx context.Context, table, idCol string, cols []string, rows [][]any) (bool, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(timeoutCtx)

	if _, err := tx.Exec(timeoutCtx, fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", table)); err != nil {
		return false, fmt.Errorf("lock %s: %w", table, err)
	}

	var count int
	if err := tx.QueryRow(timeoutCtx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
		return false, fmt.Errorf("count %s: %w", table, err)
	}
	if count > 0 {
		return false, nil
	}

	if _, err := tx.CopyFrom(timeoutCtx, pgx.Identifier{table}, cols, pgx.CopyFromRows(rows)); err != nil {
		return false, fmt.Errorf("seed %s: %w", table, err)
	}

	setval := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', '%s'), (SELECT MAX(%s) FROM %s))", table, idCol, idCol, table)
	if _, err := tx.Exec(timeoutCtx, setval); err != nil {
		return false, fmt.Errorf("advance %s sequence: %w", table, err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresRepo) CreateBook(ctx context.Context, b *entity.Book) error {
	const query = `
		INSERT INTO books (title, author, available)
		VALUES ($1, $2, $3)
		RETURNING book_id`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.QueryRow(timeoutCtx, query, b.Title, b.Author, b.Available).Scan(&b.ID)
}

func (r *PostgresRepo) CreateUser(ctx context.Context, u *entity.User) error {
	const query = `
		INSERT INTO users (name)
		VALUES ($1)
		RETURNING user_id`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.db.QueryRow(timeoutCtx, query, u.Name).Scan(&u.ID)
}

func (r *PostgresRepo) BookExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, tableBooks, goqu.Ex{colBookID: id})
}

func (r *PostgresRepo) UserExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, tableUsers, goqu.Ex{colUserID: id})
}

func (r *PostgresRepo) exists(ctx context.Context, table string, where goqu.Ex) (bool, error) {
	query, args, err := dialect.From(table).
		Select(goqu.COUNT(goqu.Star())).
		Where(where).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build %s count: %w", table, err)
	}

	var count int
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.db.QueryRow(timeoutCtx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresRepo) GetBook(ctx context.Context, id int64) (entity.Book, error) {
	query, args, err := selectBooks().Where(goqu.Ex{colBookID: id}).Prepared(true).ToSQL()
	if err != nil {
		return entity.Book{}, err
	}

	var b entity.Book
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err = r.db.QueryRow(timeoutCtx, query, args...).Scan(&b.ID, &b.Title, &b.Author, &b.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.Book{}, ErrBookNotFound
		}
		return entity.Book{}, err
	}
	return b, nil
}

func (r *PostgresRepo) GetUser(ctx context.Context, id int64) (entity.User, error) {
	query, args, err := selectUsers().Where(goqu.Ex{colUserID: id}).Prepared(true).ToSQL()
	if err != nil {
		return entity.User{}, err
	}

	var u entity.User
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err = r.db.QueryRow(timeoutCtx, query, args...).Scan(&u.ID, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.User{}, ErrUserNotFound
		}
		return entity.User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) GetRecord(ctx context.Context, id int64) (entity.BorrowRecord, error) {
	query, args, err := selectRecords().Where(goqu.Ex{colRecordID: id}).Prepared(true).ToSQL()
	if err != nil {
		return entity.BorrowRecord{}, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rec, err := scanRecord(r.db.QueryRow(timeoutCtx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.BorrowRecord{}, ErrRecordNotFound
		}
		return entity.BorrowRecord{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) ListBooks(ctx context.Context) ([]entity.Book, error) {
	query, args, err := selectBooks().Order(goqu.C(colBookID).Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.Book
	for rows.Next() {
		var b entity.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Available); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListUsers(ctx context.Context) ([]entity.User, error) {
	query, args, err := selectUsers().Order(goqu.C(colUserID).Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListRecords(ctx context.Context, f RecordFilter) ([]entity.BorrowRecord, error) {
	var conds []exp.Expression
	if f.BookID != 0 {
		conds = append(conds, goqu.C(colBookID).Eq(f.BookID))
	}
	if f.UserID != 0 {
		conds = append(conds, goqu.C(colUserID).Eq(f.UserID))
	}
	if f.OutstandingOnly {
		conds = append(conds, goqu.C(colReturnDate).IsNull())
	}

	query, args, err := selectRecords().
		Where(conds...).
		Order(goqu.C(colRecordID).Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	rows, err := r.db.Query(timeoutCtx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.BorrowRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Borrow runs the whole check-then-lend sequence in one transaction. The
// book row stays locked until commit, so a concurrent Borrow of the same
// book waits and then sees it unavailable.
func (r *PostgresRepo) Borrow(ctx context.Context, bookID, userID int64, at time.Time) (entity.BorrowRecord, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return entity.BorrowRecord{}, err
	}
	defer tx.Rollback(timeoutCtx)

	var available bool
	err = tx.QueryRow(timeoutCtx, `SELECT available FROM books WHERE book_id = $1 FOR UPDATE`, bookID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.BorrowRecord{}, ErrBookNotFound
		}
		return entity.BorrowRecord{}, fmt.Errorf("lock book: %w", err)
	}

	var userFound bool
	err = tx.QueryRow(timeoutCtx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&userFound)
	if err != nil {
		return entity.BorrowRecord{}, fmt.Errorf("check user: %w", err)
	}
	if !userFound {
		return entity.BorrowRecord{}, ErrUserNotFound
	}

	if !available {
		return entity.BorrowRecord{}, ErrBookUnavailable
	}

	if _, err := tx.Exec(timeoutCtx, `UPDATE books SET available = false WHERE book_id = $1`, bookID); err != nil {
		return entity.BorrowRecord{}, fmt.Errorf("mark book unavailable: %w", err)
	}

	const insertSQL = `
		INSERT INTO borrow_records (book_id, user_id, borrow_date)
		VALUES ($1, $2, $3)
		RETURNING record_id, book_id, user_id, borrow_date, return_date`
	rec, err := scanRecord(tx.QueryRow(timeoutCtx, insertSQL, bookID, userID, formatTimestamp(at)))
	if err != nil {
		if isOutstandingConflict(err) {
			return entity.BorrowRecord{}, ErrBookUnavailable
		}
		return entity.BorrowRecord{}, fmt.Errorf("insert borrow record: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return entity.BorrowRecord{}, err
	}
	return rec, nil
}

// Return closes an outstanding record and frees its book in one transaction.
func (r *PostgresRepo) Return(ctx context.Context, recordID int64, at time.Time) (entity.BorrowRecord, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return entity.BorrowRecord{}, err
	}
	defer tx.Rollback(timeoutCtx)

	var returnDate *string
	err = tx.QueryRow(timeoutCtx, `SELECT return_date FROM borrow_records WHERE record_id = $1 FOR UPDATE`, recordID).Scan(&returnDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.BorrowRecord{}, ErrRecordNotFound
		}
		return entity.BorrowRecord{}, fmt.Errorf("lock borrow record: %w", err)
	}
	if returnDate != nil {
		return entity.BorrowRecord{}, ErrAlreadyReturned
	}

	const updateSQL = `
		UPDATE borrow_records SET return_date = $1
		WHERE record_id = $2
		RETURNING record_id, book_id, user_id, borrow_date, return_date`
	rec, err := scanRecord(tx.QueryRow(timeoutCtx, updateSQL, formatTimestamp(at), recordID))
	if err != nil {
		return entity.BorrowRecord{}, fmt.Errorf("close borrow record: %w", err)
	}

	if _, err := tx.Exec(timeoutCtx, `UPDATE books SET available = true WHERE book_id = $1`, rec.BookID); err != nil {
		return entity.BorrowRecord{}, fmt.Errorf("mark book available: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return entity.BorrowRecord{}, err
	}
	return rec, nil
}

func selectBooks() *goqu.SelectDataset {
	return dialect.From(tableBooks).Select(colBookID, colTitle, colAuthor, colAvailable)
}

func selectUsers() *goqu.SelectDataset {
	return dialect.From(tableUsers).Select(colUserID, colName)
}

func selectRecords() *goqu.SelectDataset {
	return dialect.From(tableRecords).Select(colRecordID, colBookID, colUserID, colBorrowDate, colReturnDate)
}

func scanRecord(row pgx.Row) (entity.BorrowRecord, error) {
	var (
		rec        entity.BorrowRecord
		borrowDate string
		returnDate *string
	)
	if err := row.Scan(&rec.ID, &rec.BookID, &rec.UserID, &borrowDate, &returnDate); err != nil {
		return entity.BorrowRecord{}, err
	}

	t, err := parseTimestamp(borrowDate)
	if err != nil {
		return entity.BorrowRecord{}, fmt.Errorf("parse borrow_date of record %d: %w", rec.ID, err)
	}
	rec.BorrowDate = t

	if returnDate != nil {
		t, err := parseTimestamp(*returnDate)
		if err != nil {
			return entity.BorrowRecord{}, fmt.Errorf("parse return_date of record %d: %w", rec.ID, err)
		}
		rec.ReturnDate = &t
	}
	return rec, nil
}

func isOutstandingConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgUniqueViolation &&
		pgErr.ConstraintName == outstandingBookConstraint
}
