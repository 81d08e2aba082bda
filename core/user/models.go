package user

import "context"

// User mirrors a person record synchronized from the study registry. There
// are no local credentials; authentication happens upstream.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Language  string `json:"language"` // fi | sv | en
}

type Repository interface {
	// EnsureUsers inserts the users that do not exist yet and leaves existing
	// rows untouched; the registry person sync owns the full records.
	EnsureUsers(ctx context.Context, users []User) error
}
