package model

import "time"

// User represents an account record as stored in the `users` table (or the
// `users` collection when the document store is selected). The store owns
// the record; cache entries and request-scoped values are copies.
//
// Fields:
//
//	ID           – UUID primary key.
//	Email        – unique, lower-cased email address.
//	Username     – unique handle.
//	PasswordHash – bcrypt hash. Serialized so that a cached copy can serve
//	               logins, never rendered to clients (see Summary).
//	Profile      – optional, write-behind profile fields.
//	IsActive     – false once the account is soft-deleted.
//	DeletedAt    – soft-delete timestamp (nil while active).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last durable update.
type User struct {
	ID           string     `json:"id" bson:"_id"`
	Email        string     `json:"email" bson:"email"`
	Username     string     `json:"username" bson:"username"`
	PasswordHash string     `json:"password_hash" bson:"password_hash"`
	Profile      Profile    `json:"profile" bson:"profile"`
	IsActive     bool       `json:"is_active" bson:"is_active"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}

// Deleted reports whether the user has been soft-deleted.
func (u User) Deleted() bool { return !u.IsActive || u.DeletedAt != nil }

// UserSummary is the client-facing view of a user. It never carries the
// password hash.
type UserSummary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) Summary() UserSummary {
	return UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Profile:   u.Profile,
		CreatedAt: u.CreatedAt,
	}
}
