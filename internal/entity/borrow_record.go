package entity

import "time"

// BorrowRecord is one lending of a book to a user. ReturnDate stays nil
// while the book is out.
type BorrowRecord struct {
	ID         int64      `json:"record_id"`
	BookID     int64      `json:"book_id"`
	UserID     int64      `json:"user_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
}

// Outstanding reports whether the book has not been returned yet.
func (r BorrowRecord) Outstanding() bool {
	return r.ReturnDate == nil
}
