package repository

import (
	"database/sql"
	"encoding/json"

	"coscribe/internal/document/model"
	"coscribe/pkg/logger"
)

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

// Create inserts the document and its single owner permission entry in
// one transaction.
func (r *DocumentRepository) Create(id, title, content, ownerID string) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO documents (id, title, content, created_at, updated_at) VALUES ($1, $2, $3, NOW(), NOW())`,
		id, title, content)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return err
	}

	_, err = tx.Exec(`INSERT INTO document_permissions (document_id, user_id, role, granted_at) VALUES ($1, $2, $3, NOW())`,
		id, ownerID, model.RoleOwner)
	if err != nil {
		logger.Sugar.Errorf("Failed to create owner permission: %v", err)
		return err
	}

	return tx.Commit()
}

// Get loads the full document including content and its permission list.
// Returns sql.ErrNoRows when the id does not exist.
func (r *DocumentRepository) Get(docID string) (*model.Document, error) {
	var doc model.Document
	var content []byte
	err := r.DB.QueryRow(`SELECT id, title, content, created_at, updated_at FROM documents WHERE id = $1`, docID).
		Scan(&doc.ID, &doc.Title, &content, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			logger.Sugar.Errorf("Failed to get document %s: %v", docID, err)
		}
		return nil, err
	}
	doc.Content = json.RawMessage(content)

	doc.Permissions, err = r.Permissions(docID)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Permissions returns the document's permission list in grant order.
func (r *DocumentRepository) Permissions(docID string) ([]model.Permission, error) {
	rows, err := r.DB.Query(`SELECT user_id, role FROM document_permissions WHERE document_id = $1 ORDER BY granted_at ASC`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get permissions for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	perms := make([]model.Permission, 0)
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.UserID, &p.Role); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListByUser returns metadata for every document on which the user holds
// any permission. Content is deliberately excluded from list views.
func (r *DocumentRepository) ListByUser(userID string) ([]model.DocumentMetadata, error) {
	rows, err := r.DB.Query(`
		SELECT d.id, d.title, p.role, d.created_at, d.updated_at
		FROM documents d JOIN document_permissions p ON d.id = p.document_id
		WHERE p.user_id = $1
		ORDER BY d.updated_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	docs := make([]model.DocumentMetadata, 0)
	for rows.Next() {
		var doc model.DocumentMetadata
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Role, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range docs {
		perms, err := r.Permissions(docs[i].ID)
		if err != nil {
			return nil, err
		}
		docs[i].Permissions = perms
	}
	return docs, nil
}

func (r *DocumentRepository) UpdateTitle(docID, title string) error {
	_, err := r.DB.Exec(`UPDATE documents SET title = $1, updated_at = NOW() WHERE id = $2`, title, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update title for doc %s: %v", docID, err)
	}
	return err
}

// UpdateContent overwrites the entire content blob. Last write wins;
// merging concurrent saves is explicitly not this system's job.
func (r *DocumentRepository) UpdateContent(docID, content string) error {
	_, err := r.DB.Exec(`UPDATE documents SET content = $1, updated_at = NOW() WHERE id = $2`, content, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to update content for doc %s: %v", docID, err)
	}
	return err
}

// Delete removes the document and, via ON DELETE CASCADE, its
// permission entries.
func (r *DocumentRepository) Delete(docID string) error {
	_, err := r.DB.Exec(`DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", docID, err)
	}
	return err
}

// UpsertPermission grants or updates a user's role on a document. The
// conflict clause keeps the permission list free of duplicate users:
// sharing twice with the same target updates the existing row in place.
func (r *DocumentRepository) UpsertPermission(docID, userID string, role model.Role) error {
	_, err := r.DB.Exec(`INSERT INTO document_permissions (document_id, user_id, role, granted_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (document_id, user_id) DO UPDATE SET role = $3`, docID, userID, role)
	if err != nil {
		logger.Sugar.Errorf("Failed to upsert permission for %s on doc %s: %v", userID, docID, err)
	}
	return err
}

// UserIDByEmail resolves a share target. Returns sql.ErrNoRows when no
// account exists for the address.
func (r *DocumentRepository) UserIDByEmail(email string) (string, error) {
	var userID string
	err := r.DB.QueryRow(`SELECT id FROM users WHERE email = $1`, email).Scan(&userID)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get user by email %s: %v", email, err)
	}
	return userID, err
}

// Username looks up the display name shown in presence entries.
func (r *DocumentRepository) Username(userID string) (string, error) {
	var username string
	err := r.DB.QueryRow(`SELECT username FROM users WHERE id = $1`, userID).Scan(&username)
	if err != nil && err != sql.ErrNoRows {
		logger.Sugar.Errorf("Failed to get username for user %s: %v", userID, err)
	}
	return username, err
}
