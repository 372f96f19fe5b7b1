// Package menu is the interactive text front end of the circulation store.
// It owns all console output; the store only returns results and errors.
package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"library/internal/catalog"
	"library/internal/entity"
)

// Store is the subset of the catalog store the menu drives.
type Store interface {
	AddBook(ctx context.Context, title, author string) (entity.Book, error)
	AddUser(ctx context.Context, name string) (entity.User, error)
	Borrow(ctx context.Context, bookID, userID int64) (entity.BorrowRecord, error)
	Return(ctx context.Context, recordID int64) (entity.BorrowRecord, error)
}

const banner = `
Library Management System
1. Add Book
2. Add User
3. Borrow Book
4. Return Book
5. Exit`

// errEndOfInput ends the session when stdin is closed mid-prompt.
var errEndOfInput = errors.New("end of input")

type Menu struct {
	store Store
	in    *bufio.Scanner
	out   io.Writer
}

func New(store Store, in io.Reader, out io.Writer) *Menu {
	return &Menu{store: store, in: bufio.NewScanner(in), out: out}
}

// Run shows the menu until the user exits or input ends. It returns only
// storage failures; rejected requests are reported and the loop continues.
func (m *Menu) Run(ctx context.Context) error {
	for {
		m.println(banner)
		choice, err := m.prompt("Enter your choice: ")
		if err != nil {
			return m.finish(err)
		}

		switch strings.TrimSpace(choice) {
		case "1":
			err = m.addBook(ctx)
		case "2":
			err = m.addUser(ctx)
		case "3":
			err = m.borrow(ctx)
		case "4":
			err = m.returnBook(ctx)
		case "5":
			m.println("Exiting the program.")
			return nil
		default:
			m.println("Invalid choice. Please select a valid option.")
		}
		if err != nil {
			return m.finish(err)
		}
	}
}

func (m *Menu) finish(err error) error {
	if errors.Is(err, errEndOfInput) {
		m.println("Exiting the program.")
		return nil
	}
	return err
}

func (m *Menu) addBook(ctx context.Context) error {
	title, err := m.prompt("Enter book title: ")
	if err != nil {
		return err
	}
	author, err := m.prompt("Enter book author: ")
	if err != nil {
		return err
	}

	b, err := m.store.AddBook(ctx, title, author)
	if err != nil {
		return m.report(err)
	}
	m.printf("Added book '%s' with ID %d\n", b.Title, b.ID)
	return nil
}

func (m *Menu) addUser(ctx context.Context) error {
	name, err := m.prompt("Enter user name: ")
	if err != nil {
		return err
	}

	u, err := m.store.AddUser(ctx, name)
	if err != nil {
		return m.report(err)
	}
	m.printf("Added user '%s' with ID %d\n", u.Name, u.ID)
	return nil
}

// borrow keeps asking until a loan goes through.
func (m *Menu) borrow(ctx context.Context) error {
	for {
		bookID, ok, err := m.promptID("Enter book ID to borrow: ")
		if err != nil {
			return err
		}
		if !ok {
			m.println("Invalid input. Please enter numeric IDs.")
			continue
		}
		userID, ok, err := m.promptID("Enter user ID: ")
		if err != nil {
			return err
		}
		if !ok {
			m.println("Invalid input. Please enter numeric IDs.")
			continue
		}

		rec, err := m.store.Borrow(ctx, bookID, userID)
		if err != nil {
			if catalog.IsRuleViolation(err) {
				m.println(borrowFailure(err, bookID))
				continue
			}
			return err
		}
		m.printf("Book with ID %d borrowed by user with ID %d (record %d)\n", rec.BookID, rec.UserID, rec.ID)
		return nil
	}
}

// returnBook asks until it gets a numeric id, then tries the return once.
func (m *Menu) returnBook(ctx context.Context) error {
	for {
		recordID, ok, err := m.promptID("Enter borrow record ID to return: ")
		if err != nil {
			return err
		}
		if !ok {
			m.println("Invalid input. Please enter a numeric record ID.")
			continue
		}

		rec, err := m.store.Return(ctx, recordID)
		if err != nil {
			return m.report(err)
		}
		m.printf("Book with ID %d has been returned\n", rec.BookID)
		return nil
	}
}

// report prints a rejected request and swallows it; anything else is
// handed back to the caller.
func (m *Menu) report(err error) error {
	if !catalog.IsRuleViolation(err) {
		return err
	}
	switch {
	case errors.Is(err, catalog.ErrRecordNotFound):
		m.println("Invalid record ID. Please try again.")
	case errors.Is(err, catalog.ErrAlreadyReturned):
		m.println("This record has already been returned.")
	default:
		m.printf("Request rejected: %v\n", err)
	}
	return nil
}

func borrowFailure(err error, bookID int64) string {
	switch {
	case errors.Is(err, catalog.ErrBookNotFound):
		return "Invalid book ID. Please try again."
	case errors.Is(err, catalog.ErrUserNotFound):
		return "No user found with this ID. Please try again."
	case errors.Is(err, catalog.ErrBookUnavailable):
		return fmt.Sprintf("Book with ID %d is not available", bookID)
	}
	return fmt.Sprintf("Request rejected: %v", err)
}

func (m *Menu) prompt(label string) (string, error) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		m.println("")
		return "", errEndOfInput
	}
	return m.in.Text(), nil
}

// promptID reads one line and parses it as an id. ok is false for
// non-numeric input.
func (m *Menu) promptID(label string) (id int64, ok bool, err error) {
	line, err := m.prompt(label)
	if err != nil {
		return 0, false, err
	}
	id, convErr := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if convErr != nil {
		return 0, false, nil
	}
	return id, true, nil
}

func (m *Menu) println(s string) {
	fmt.Fprintln(m.out, s)
}

func (m *Menu) printf(format string, args ...any) {
	fmt.Fprintf(m.out, format, args...)
}
