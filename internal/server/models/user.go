package models

// User is the authenticated subject as carried in tokens. Accounts are
// managed by a separate service.
type User struct {
	ID       int64
	Username string
	Email    string
}
