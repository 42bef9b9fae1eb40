package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles.
const (
	RoleUser    = "user"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email     string             `bson:"email" json:"email"`
	Name      string             `bson:"name" json:"name"`
	Role      string             `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`

	// Storage accounting, maintained by the quota manager on every
	// accepted upload, version and delete.
	UsedStorage   int64 `bson:"used_storage" json:"used_storage"`
	DocumentCount int64 `bson:"document_count" json:"document_count"`

	// Per-user override limits. Zero means "use the role default".
	MaxStorage   int64 `bson:"max_storage" json:"max_storage"`
	MaxDocuments int64 `bson:"max_documents" json:"max_documents"`
}

// IsElevated reports whether the user's role receives the elevated quota tier.
func (u *User) IsElevated() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}
