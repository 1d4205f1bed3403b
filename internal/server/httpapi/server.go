// Package httpapi exposes the vault core to the external resolver/UI layer
// as a thin HTTP JSON API. It owns transport concerns only: identity
// extraction, request decoding, and error mapping.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/logging"
	"github.com/sealvault/sealvault/internal/server/auth"
	"github.com/sealvault/sealvault/internal/server/models"
	"github.com/sealvault/sealvault/internal/server/services"
)

// FileOps is the slice of FileService the API consumes.
type FileOps interface {
	Upload(ctx context.Context, req *services.UploadRequest) (*models.UserFile, error)
	Trash(ctx context.Context, ownerID, fileID string) error
	Restore(ctx context.Context, ownerID, fileID string) error
	PermanentlyDelete(ctx context.Context, ownerID, fileID string) error
	Usage(ctx context.Context, ownerID string) (int64, error)
}

// ShareOps is the slice of ShareService the API consumes.
type ShareOps interface {
	Create(ctx context.Context, ownerID, userFileID string, ownerKEK []byte, password string, opts services.ShareOptions) (*models.ShareLink, error)
	Access(ctx context.Context, token, password string, requesterIdentity *string) (*services.AccessGrant, error)
	Revoke(ctx context.Context, ownerID, shareID string) error
	DownloadHistory(ctx context.Context, ownerID, userFileID string, limit int) ([]*models.DownloadLogEntry, error)
}

// Server is the HTTP front of the vault core.
type Server struct {
	address   string
	mux       *http.ServeMux
	logger    logging.Logger
	files     FileOps
	shares    ShareOps
	jwtSecret []byte
}

// NewServer wires routes and returns a ready-to-run server.
func NewServer(address string, logger logging.Logger, files FileOps, shares ShareOps, secretKey string) *Server {
	s := &Server{
		address:   address,
		mux:       http.NewServeMux(),
		logger:    logger.With("module", "httpapi"),
		files:     files,
		shares:    shares,
		jwtSecret: []byte(secretKey),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/v1/files", s.withAuth(s.handleUpload))
	s.mux.HandleFunc("POST /api/v1/files/{id}/trash", s.withAuth(s.handleTrash))
	s.mux.HandleFunc("POST /api/v1/files/{id}/restore", s.withAuth(s.handleRestore))
	s.mux.HandleFunc("DELETE /api/v1/files/{id}", s.withAuth(s.handleDeleteFile))
	s.mux.HandleFunc("GET /api/v1/files/{id}/downloads", s.withAuth(s.handleDownloadHistory))
	s.mux.HandleFunc("GET /api/v1/usage", s.withAuth(s.handleUsage))

	s.mux.HandleFunc("POST /api/v1/shares", s.withAuth(s.handleCreateShare))
	s.mux.HandleFunc("DELETE /api/v1/shares/{id}", s.withAuth(s.handleRevokeShare))

	// Share access is deliberately unauthenticated; a bearer token, when
	// present, only supplies the requester identity for restricted shares.
	s.mux.HandleFunc("POST /api/v1/shares/access", s.handleAccessShare)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type ctxKey string

const identityKey ctxKey = "identity"

// identityFromRequest extracts and verifies the bearer token, if any.
func (s *Server) identityFromRequest(r *http.Request) (*auth.Identity, error) {
	header := r.Header.Get(common.AuthorizationHeaderName)
	if header == "" {
		return nil, common.ErrUnauthorized
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, common.ErrInvalidToken
	}
	return auth.IdentityFromToken(token, s.jwtSecret)
}

// withAuth rejects requests without a valid bearer identity and stores the
// identity in the request context.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.identityFromRequest(r)
		if err != nil {
			s.jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next(w, r.WithContext(ctx))
	}
}

func identityFromContext(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(identityKey).(*auth.Identity)
	return identity
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
