package asset_api

import (
	"fmt"
	"net/http"
	"rallysphere/internal/apperr"
	"rallysphere/internal/assets"
	"rallysphere/internal/auth"
	"rallysphere/internal/logger"
	"rallysphere/internal/utils"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	AssetService *assets.Service
	Translator   utils.Localizer
	Logger       *logger.Logger
}

type uploadResponse struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Upload accepts a multipart form with a "file" part and an optional
// "path" destination. Paths under events/ are refused.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFrom(r.Context())
	h.Logger.Info("API", fmt.Sprintf("UploadAsset: user=%s", session.UserID))

	r.Body = http.MaxBytesReader(w, r.Body, h.AssetService.MaxBytes+(1<<20))
	if err := r.ParseMultipartForm(h.AssetService.MaxBytes); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UploadAsset: bad multipart body: %v", err))
		_ = utils.WriteError(w, r, h.Translator, &apperr.UploadFailure{Path: r.FormValue("path"), Reason: "invalid multipart body"})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, apperr.Invalid("file", "is required"))
		return
	}
	defer file.Close()

	dest := r.FormValue("path")
	if dest == "" {
		dest = fmt.Sprintf("users/%s/%s", session.UserID, uuid.NewString())
	}
	// Event covers are written by the event service only.
	if cleaned, err := assets.CleanPath(dest); err == nil && strings.HasPrefix(cleaned, "events/") {
		h.Logger.LogSecurity("ASSET_RESERVED_PATH", fmt.Sprintf("%s tried to upload to %s", session.UserID, cleaned))
		_ = utils.WriteError(w, r, h.Translator, apperr.ErrForbidden)
		return
	}

	url, err := h.AssetService.Upload(r.Context(), session.UserID, dest, file)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UploadAsset: %v", err))
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}

	cleaned, _ := assets.CleanPath(dest)
	_ = utils.WriteSuccess(w, r, h.Translator, http.StatusCreated, "status.ok", nil, uploadResponse{Path: cleaned, URL: url})
	h.Logger.Info("API", "UploadAsset: stored "+cleaned)
}

// Serve writes the raw bytes of the asset under /assets/*.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	assetPath := chi.URLParam(r, "*")

	asset, err := h.AssetService.Get(r.Context(), assetPath)
	if err != nil {
		_ = utils.WriteError(w, r, h.Translator, err)
		return
	}

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(asset.Size, 10))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(asset.Data); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ServeAsset: write %s: %v", assetPath, err))
	}
}
