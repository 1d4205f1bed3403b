package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sealvault/sealvault/internal/common"
	"github.com/sealvault/sealvault/internal/server/models"
	"github.com/sealvault/sealvault/internal/server/services"
)

// maxUploadBody caps the decoded request size. Large files belong in
// chunked uploads at the resolver layer, not this boundary.
const maxUploadBody = 256 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadRequest struct {
	ContentHash string  `json:"content_hash"`
	Ciphertext  []byte  `json:"ciphertext"`
	Size        int64   `json:"size"`
	WrappedKey  []byte  `json:"wrapped_key"`
	KeyNonce    []byte  `json:"key_nonce"`
	Filename    string  `json:"filename"`
	FolderID    *string `json:"folder_id,omitempty"`
}

type fileResponse struct {
	ID          string  `json:"id"`
	ContentHash string  `json:"content_hash"`
	Filename    string  `json:"filename"`
	FolderID    *string `json:"folder_id,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req uploadRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.ContentHash == "" || req.Filename == "" || len(req.WrappedKey) == 0 || len(req.KeyNonce) == 0 {
		s.jsonError(w, "missing required fields", http.StatusBadRequest)
		return
	}

	file, err := s.files.Upload(r.Context(), &services.UploadRequest{
		OwnerID:     identity.UserID,
		Username:    identity.Username,
		ContentHash: req.ContentHash,
		Ciphertext:  req.Ciphertext,
		Size:        req.Size,
		WrappedKey:  req.WrappedKey,
		KeyNonce:    req.KeyNonce,
		Filename:    req.Filename,
		FolderID:    req.FolderID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, fileResponse{
		ID:          file.ID,
		ContentHash: file.ContentHash,
		Filename:    file.Filename,
		FolderID:    file.FolderID,
	})
}

func (s *Server) handleTrash(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if err := s.files.Trash(r.Context(), identity.UserID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "trashed"})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if err := s.files.Restore(r.Context(), identity.UserID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if err := s.files.PermanentlyDelete(r.Context(), identity.UserID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	usage, err := s.files.Usage(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"usage_bytes": usage})
}

type createShareRequest struct {
	UserFileID        string     `json:"user_file_id"`
	OwnerKEK          []byte     `json:"owner_kek"`
	Password          string     `json:"password"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	MaxDownloads      *int64     `json:"max_downloads,omitempty"`
	AllowedIdentities []string   `json:"allowed_identities,omitempty"`
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())

	var req createShareRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.UserFileID == "" || req.Password == "" || len(req.OwnerKEK) == 0 {
		s.jsonError(w, "missing required fields", http.StatusBadRequest)
		return
	}

	share, err := s.shares.Create(r.Context(), identity.UserID, req.UserFileID, req.OwnerKEK, req.Password, services.ShareOptions{
		ExpiresAt:         req.ExpiresAt,
		MaxDownloads:      req.MaxDownloads,
		AllowedIdentities: req.AllowedIdentities,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{
		"share_id": share.ID,
		"token":    share.Token,
	})
}

func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if err := s.shares.Revoke(r.Context(), identity.UserID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type accessShareRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleAccessShare(w http.ResponseWriter, r *http.Request) {
	// Identity is optional here; restricted shares need it, open shares
	// ignore it.
	var requester *string
	if identity, err := s.identityFromRequest(r); err == nil {
		requester = &identity.Username
	}

	var req accessShareRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.Token == "" {
		s.jsonError(w, "access denied", http.StatusForbidden)
		return
	}

	grant, err := s.shares.Access(r.Context(), req.Token, req.Password, requester)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"content_url": grant.ContentURL,
		"key":         grant.Key,
		"filename":    grant.Filename,
	})
}

func (s *Server) handleDownloadHistory(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	entries, err := s.shares.DownloadHistory(r.Context(), identity.UserID, r.PathValue("id"), 100)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.DownloadLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps core errors onto stable codes with generic bodies.
// Internal reasons never leak to the caller.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrAccessDenied):
		s.jsonError(w, "access denied", http.StatusForbidden)
	case errors.Is(err, common.ErrNotFound):
		s.jsonError(w, "not found", http.StatusNotFound)
	case errors.Is(err, common.ErrQuotaExceeded):
		s.jsonError(w, "quota exceeded", http.StatusRequestEntityTooLarge)
	case errors.Is(err, common.ErrStorageUnavailable):
		s.jsonError(w, "storage unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, common.ErrInvalidArgument):
		s.jsonError(w, "invalid request", http.StatusBadRequest)
	case errors.Is(err, common.ErrUnauthorized):
		s.jsonError(w, "unauthorized", http.StatusUnauthorized)
	default:
		s.logger.Error(r.Context(), "internal error", "path", r.URL.Path, "error", err.Error())
		s.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
