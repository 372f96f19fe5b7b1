package catalog

import "library/internal/entity"

// DefaultBooks are inserted when the books table is empty.
func DefaultBooks() []entity.Book {
	return []entity.Book{
		{ID: 1, Title: "To Kill a Mockingbird", Author: "Harper Lee", Available: true},
		{ID: 2, Title: "1984", Author: "George Orwell", Available: true},
		{ID: 3, Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", Available: true},
		{ID: 4, Title: "The Catcher in the Rye", Author: "J.D. Salinger", Available: true},
		{ID: 5, Title: "Pride and Prejudice", Author: "Jane Austen", Available: true},
	}
}

// DefaultUsers are inserted when the users table is empty.
func DefaultUsers() []entity.User {
	return []entity.User{
		{ID: 1, Name: "John Doe"},
		{ID: 2, Name: "Jane Smith"},
		{ID: 3, Name: "Alice Johnson"},
		{ID: 4, Name: "Bob Brown"},
	}
}
