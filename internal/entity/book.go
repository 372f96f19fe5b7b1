package entity

type Book struct {
	ID        int64  `json:"book_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Available bool   `json:"available"`
}
