package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document lifecycle statuses.
const (
	StatusDraft    = "draft"
	StatusInReview = "in-review"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusArchived = "archived"
	StatusDeleted  = "deleted"
)

// Document visibility.
const (
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
	VisibilityPublic  = "public"
)

// Document sensitivity levels.
const (
	SensitivityStandard     = "standard"
	SensitivityConfidential = "confidential"
	SensitivityRestricted   = "restricted"
)

// Share permission levels, ordered. Each level supersets the previous;
// PermissionOwner and PermissionManage sit above the grantable ladder.
const (
	PermissionNone     = "none"
	PermissionView     = "view"
	PermissionDownload = "download"
	PermissionEdit     = "edit"
	PermissionManage   = "manage"
	PermissionOwner    = "owner"
)

// Document is the logical, versioned unit a user perceives as "a file".
// Successive versions are separate rows linked through ParentDocumentID;
// exactly one row per chain carries IsLatestVersion.
type Document struct {
	ID               primitive.ObjectID    `bson:"_id,omitempty" json:"id"`
	OwnerID          primitive.ObjectID    `bson:"owner_id" json:"owner_id"`
	Name             string                `bson:"name" json:"name"`
	OriginalName     string                `bson:"original_name" json:"original_name"`
	Size             int64                 `bson:"size" json:"size"`
	ContentType      string                `bson:"content_type" json:"content_type"`
	Checksum         string                `bson:"checksum" json:"checksum"`
	BlobName         string                `bson:"blob_name" json:"blob_name"`
	Category         string                `bson:"category" json:"category"`
	Description      string                `bson:"description" json:"description"`
	Tags             map[string]string     `bson:"tags,omitempty" json:"tags,omitempty"`
	Sensitivity      string                `bson:"sensitivity" json:"sensitivity"`
	Visibility       string                `bson:"visibility" json:"visibility"`
	Status           string                `bson:"status" json:"status"`
	WorkflowStage    string                `bson:"workflow_stage,omitempty" json:"workflow_stage,omitempty"`
	ClientID         *primitive.ObjectID   `bson:"client_id,omitempty" json:"client_id,omitempty"`
	GrantID          *primitive.ObjectID   `bson:"grant_id,omitempty" json:"grant_id,omitempty"`
	Version          int                   `bson:"version" json:"version"`
	IsLatestVersion  bool                  `bson:"is_latest_version" json:"is_latest_version"`
	ParentDocumentID *primitive.ObjectID   `bson:"parent_document_id,omitempty" json:"parent_document_id,omitempty"`
	Shares           []ShareGrant          `bson:"shares,omitempty" json:"shares,omitempty"`
	Versions         []VersionHistoryEntry `bson:"versions,omitempty" json:"versions,omitempty"`
	DeletedAt        *time.Time            `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	CreatedAt        time.Time             `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time             `bson:"updated_at" json:"updated_at"`
}

// ShareGrant gives a specific user a specific access level to the document,
// optionally time-limited. At most one active grant per grantee.
type ShareGrant struct {
	GranteeID  primitive.ObjectID `bson:"grantee_id" json:"grantee_id"`
	Permission string             `bson:"permission" json:"permission"`
	GrantedBy  primitive.ObjectID `bson:"granted_by" json:"granted_by"`
	GrantedAt  time.Time          `bson:"granted_at" json:"granted_at"`
	ExpiresAt  *time.Time         `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// VersionHistoryEntry is the immutable snapshot recorded on the predecessor
// document when a new version supersedes it.
type VersionHistoryEntry struct {
	Version    int                `bson:"version" json:"version"`
	BlobName   string             `bson:"blob_name" json:"blob_name"`
	Size       int64              `bson:"size" json:"size"`
	ChangeNote string             `bson:"change_note,omitempty" json:"change_note,omitempty"`
	ActorID    primitive.ObjectID `bson:"actor_id" json:"actor_id"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// IsDeleted reports whether the document is soft-deleted.
func (d *Document) IsDeleted() bool {
	return d.Status == StatusDeleted
}
