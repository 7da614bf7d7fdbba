package model

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	DefaultTitle   = "Untitled Document"
	DefaultContent = `{"ops":[{"insert":"Start typing here...\n"}]}`
)

// Permission grants one user one role on one document. A user appears at
// most once in a document's permission list.
type Permission struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Document is the persisted record. Content is an opaque rich-text blob;
// this backend relays and stores it but never interprets it.
type Document struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content,omitempty"`
	Permissions []Permission    `json:"permissions"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Owner returns the first owner-role permission entry, if any.
func (d *Document) Owner() (Permission, bool) {
	for _, p := range d.Permissions {
		if p.Role == RoleOwner {
			return p, true
		}
	}
	return Permission{}, false
}

// HasRole reports whether userID holds one of the allowed roles on doc.
// Lookup is by normalized identifier equality. No entry means false.
// Pure; safe to call concurrently.
func HasRole(doc *Document, userID string, allowed ...Role) bool {
	userID = strings.TrimSpace(userID)
	for _, p := range doc.Permissions {
		if strings.TrimSpace(p.UserID) != userID {
			continue
		}
		for _, role := range allowed {
			if p.Role == role {
				return true
			}
		}
		return false
	}
	return false
}

// DocumentMetadata is the list view: everything but the content blob.
type DocumentMetadata struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type CreateDocRequest struct {
	Title string `json:"title"`
}

type SaveDocRequest struct {
	Title   *string         `json:"title,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

type ShareRequest struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
