package service

import (
	"database/sql"
	"errors"
	"strings"

	"coscribe/internal/document/model"
	"coscribe/internal/document/repository"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("insufficient role for this action")
	ErrUserNotFound     = errors.New("no user with that email")
	ErrSelfShare        = errors.New("cannot change your own role via sharing")
	ErrInvalidRole      = errors.New("role must be editor or viewer")
)

// RoomCloser disconnects any live collaboration session for a document.
// Implemented by the socket hub; nil disables the coupling (tests).
type RoomCloser interface {
	CloseRoom(docID string)
}

type DocumentService struct {
	Repo  *repository.DocumentRepository
	Rooms RoomCloser
}

func NewDocumentService(repo *repository.DocumentRepository, rooms RoomCloser) *DocumentService {
	return &DocumentService{Repo: repo, Rooms: rooms}
}

// List returns metadata for every document the user can see. Content is
// omitted from list views.
func (s *DocumentService) List(userID string) ([]model.DocumentMetadata, error) {
	return s.Repo.ListByUser(userID)
}

// Create makes a new document owned by userID and returns the full
// record.
func (s *DocumentService) Create(userID, title string) (*model.Document, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultTitle
	}
	docID := uuid.NewString()
	if err := s.Repo.Create(docID, title, model.DefaultContent, userID); err != nil {
		return nil, err
	}
	return s.Repo.Get(docID)
}

// Get returns the full document. The caller must hold any role on it.
func (s *DocumentService) Get(docID, callerID string) (*model.Document, error) {
	doc, err := s.load(docID)
	if err != nil {
		return nil, err
	}
	if !model.HasRole(doc, callerID, model.RoleOwner, model.RoleEditor, model.RoleViewer) {
		return nil, ErrPermissionDenied
	}
	return doc, nil
}

// Save replaces whichever fields the request supplies and bumps the
// update timestamp. Content is overwritten whole: concurrent saves
// resolve by last write wins at save-call granularity, with no merging.
func (s *DocumentService) Save(docID, callerID string, req model.SaveDocRequest) error {
	doc, err := s.load(docID)
	if err != nil {
		return err
	}
	if !model.HasRole(doc, callerID, model.RoleOwner, model.RoleEditor) {
		return ErrPermissionDenied
	}

	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		if err := s.Repo.UpdateTitle(docID, *req.Title); err != nil {
			return err
		}
	}
	if len(req.Content) > 0 && string(req.Content) != "null" {
		if err := s.Repo.UpdateContent(docID, string(req.Content)); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the document entirely. Owner only. Any live room for
// the document is force-closed so clients stop editing a ghost.
func (s *DocumentService) Delete(docID, callerID string) error {
	doc, err := s.load(docID)
	if err != nil {
		return err
	}
	if !model.HasRole(doc, callerID, model.RoleOwner) {
		return ErrPermissionDenied
	}
	if err := s.Repo.Delete(docID); err != nil {
		return err
	}
	if s.Rooms != nil {
		s.Rooms.CloseRoom(docID)
	}
	return nil
}

// Share grants the target user a role on the document, or updates the
// role if the target already holds one. Owner only; the owner role
// itself is not grantable here.
func (s *DocumentService) Share(docID, callerID, email string, role model.Role) error {
	if !role.Valid() || role == model.RoleOwner {
		return ErrInvalidRole
	}

	doc, err := s.load(docID)
	if err != nil {
		return err
	}

	// An unknown target reads as not-found to any caller, owner or not,
	// so the email resolves before the role gate.
	targetID, err := s.Repo.UserIDByEmail(email)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		return err
	}

	if !model.HasRole(doc, callerID, model.RoleOwner) {
		return ErrPermissionDenied
	}
	if targetID == callerID {
		return ErrSelfShare
	}

	return s.Repo.UpsertPermission(docID, targetID, role)
}

// CanAccess reports whether the user holds any role on the document.
// Used by the session gateway when gated joins are enabled.
func (s *DocumentService) CanAccess(docID, userID string) (bool, error) {
	doc, err := s.load(docID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return model.HasRole(doc, userID, model.RoleOwner, model.RoleEditor, model.RoleViewer), nil
}

// Username resolves the display name shown in presence entries. Falls
// back to the raw id when the account has no stored name.
func (s *DocumentService) Username(userID string) string {
	name, err := s.Repo.Username(userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

func (s *DocumentService) load(docID string) (*model.Document, error) {
	doc, err := s.Repo.Get(docID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}
