package entity

type User struct {
	ID   int64  `json:"user_id"`
	Name string `json:"name"`
}
