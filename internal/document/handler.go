package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"coscribe/internal/document/model"
	"coscribe/internal/document/service"
	"coscribe/middleware"
	"coscribe/pkg/logger"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.IdentityFrom(r.Context()).UserID

	docs, err := h.Service.List(userID)
	if err != nil {
		logger.Sugar.Errorf("Error listing documents: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.IdentityFrom(r.Context()).UserID

	var req model.CreateDocRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // empty body means default title

	doc, err := h.Service.Create(userID, req.Title)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.IdentityFrom(r.Context()).UserID
	docID := r.PathValue("id")

	doc, err := h.Service.Get(docID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Save(w http.ResponseWriter, r *http.Request) {
	userID := middleware.IdentityFrom(r.Context()).UserID
	docID := r.PathValue("id")

	var req model.SaveDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Service.Save(docID, userID, req); err != nil {
		logger.Sugar.Errorf("Error saving document %s: %v", docID, err)
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Document saved successfully")
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.IdentityFrom(r.Context()).UserID
	docID := r.PathValue("id")

	if err := h.Service.Delete(docID, userID); err != nil {
		logger.Sugar.Errorf("Failed to delete document %s: %v", docID, err)
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Document removed")
}

func (h *DocumentHandler) Share(w http.ResponseWriter, r *http.Request) {
	userID := middleware.IdentityFrom(r.Context()).UserID
	docID := r.PathValue("id")

	var req model.ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeMessage(w, http.StatusBadRequest, "Email and role are required")
		return
	}

	if err := h.Service.Share(docID, userID, req.Email, req.Role); err != nil {
		logger.Sugar.Errorf("Failed to share document %s: %v", docID, err)
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, req.Email+" granted "+string(req.Role)+" access.")
}

// writeError maps the service error taxonomy to status codes. Handlers
// report failures and keep serving; nothing here ever panics outward.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Document not found")
	case errors.Is(err, service.ErrPermissionDenied):
		writeMessage(w, http.StatusForbidden, "Access denied: insufficient role for this action")
	case errors.Is(err, service.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, "Document or user not found")
	case errors.Is(err, service.ErrSelfShare):
		writeMessage(w, http.StatusBadRequest, "Cannot change your own role via sharing endpoint")
	case errors.Is(err, service.ErrInvalidRole):
		writeMessage(w, http.StatusBadRequest, "Invalid role. Must be editor or viewer")
	default:
		writeMessage(w, http.StatusInternalServerError, "Server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
