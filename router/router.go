package router

import (
	"database/sql"
	"net/http"

	"coscribe/internal/auth"
	docHandler "coscribe/internal/document"
	"coscribe/internal/document/repository"
	"coscribe/internal/document/service"
	"coscribe/middleware"
	"coscribe/pkg/config"
	"coscribe/socket"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(cfg *config.Config, db *sql.DB, hub *socket.Hub, verifier *auth.Verifier) http.Handler {
	mux := http.NewServeMux()

	docRepo := repository.NewDocumentRepository(db)
	docService := service.NewDocumentService(docRepo, hub)
	hub.Attach(docService, docService)

	h := docHandler.NewDocumentHandler(docService)
	authn := middleware.Auth(verifier)

	// WebSocket handshake carries the same bearer credential as the
	// REST surface, just in the query string.
	mux.Handle("GET /ws", authn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := middleware.IdentityFrom(r.Context())
		socket.ServeWs(hub, w, r, ident.UserID, ident.Username)
	})))

	mux.Handle("GET /api/documents", authn(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/documents", authn(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/documents/{id}", authn(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/documents/{id}", authn(http.HandlerFunc(h.Save)))
	mux.Handle("DELETE /api/documents/{id}", authn(http.HandlerFunc(h.Delete)))
	mux.Handle("POST /api/documents/{id}/share", authn(http.HandlerFunc(h.Share)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Coscribe collaboration API is running..."))
	})

	return middleware.CORS(cfg.Server.ClientURL)(mux)
}
