// Package assets stores uploaded images and serves them back by path.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"rallysphere/internal/apperr"
	"rallysphere/internal/logger"
	"rallysphere/internal/models"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic"}

type Store interface {
	SaveAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, path string) (*models.Asset, error)
	DeleteAsset(ctx context.Context, path string) error
}

type Recorder interface {
	RecordUpload(result string)
}

type Service struct {
	Store    Store
	MaxBytes int64
	BaseURL  string
	Metrics  Recorder
	Logger   *logger.Logger
	Now      func() time.Time
}

func NewService(store Store, maxBytes int64, baseURL string, m Recorder, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		MaxBytes: maxBytes,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Metrics:  m,
		Logger:   log,
		Now:      time.Now,
	}
}

// CleanPath normalizes a destination path and rejects paths escaping the
// asset root.
func CleanPath(p string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.Contains(p, "..") {
		return "", &apperr.UploadFailure{Path: p, Reason: "invalid destination path"}
	}
	return cleaned, nil
}

// Upload stores the image read from content at destinationPath and returns
// its public URL. An existing asset at the same path is replaced only when
// uploaderID also uploaded it.
func (s *Service) Upload(ctx context.Context, uploaderID, destinationPath string, content io.Reader) (string, error) {
	p, err := CleanPath(destinationPath)
	if err != nil {
		s.Metrics.RecordUpload("rejected")
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(content, s.MaxBytes+1))
	if err != nil {
		s.Metrics.RecordUpload("rejected")
		return "", &apperr.UploadFailure{Path: p, Reason: "read failed: " + err.Error()}
	}
	if int64(len(data)) > s.MaxBytes {
		s.Metrics.RecordUpload("rejected")
		return "", &apperr.UploadFailure{Path: p, Reason: fmt.Sprintf("file exceeds %d bytes", s.MaxBytes)}
	}
	if len(data) == 0 {
		s.Metrics.RecordUpload("rejected")
		return "", &apperr.UploadFailure{Path: p, Reason: "file is empty"}
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		s.Metrics.RecordUpload("rejected")
		return "", &apperr.UploadFailure{Path: p, Reason: "unsupported content type " + mtype.String()}
	}

	existing, err := s.Store.GetAsset(ctx, p)
	switch {
	case err == nil && existing.UploaderID != uploaderID:
		s.Metrics.RecordUpload("rejected")
		s.Logger.LogSecurity("ASSET_OVERWRITE", fmt.Sprintf("%s tried to replace %s owned by %s", uploaderID, p, existing.UploaderID))
		return "", apperr.ErrForbidden
	case err != nil && !errors.Is(err, apperr.ErrNotFound):
		s.Metrics.RecordUpload("failed")
		return "", &apperr.UploadFailure{Path: p, Reason: "storage failed", Err: err}
	}

	asset := &models.Asset{
		Path:        p,
		ContentType: mtype.String(),
		Size:        int64(len(data)),
		Data:        data,
		UploaderID:  uploaderID,
		CreatedAt:   s.Now(),
	}
	if err := s.Store.SaveAsset(ctx, asset); err != nil {
		s.Metrics.RecordUpload("failed")
		s.Logger.Error("ASSET", fmt.Sprintf("Failed to store %s: %v", p, err))
		return "", &apperr.UploadFailure{Path: p, Reason: "storage failed", Err: err}
	}

	s.Metrics.RecordUpload("stored")
	s.Logger.Info("ASSET", fmt.Sprintf("Stored %s (%s, %d bytes) for %s", p, asset.ContentType, asset.Size, uploaderID))
	return s.URL(p), nil
}

func (s *Service) Get(ctx context.Context, assetPath string) (*models.Asset, error) {
	p, err := CleanPath(assetPath)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	return s.Store.GetAsset(ctx, p)
}

// Delete removes an asset. Missing assets are not an error.
func (s *Service) Delete(ctx context.Context, assetPath string) error {
	p, err := CleanPath(assetPath)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteAsset(ctx, p); err != nil {
		return apperr.External("database", err)
	}
	s.Logger.Info("ASSET", "Deleted "+p)
	return nil
}

func (s *Service) URL(assetPath string) string {
	return s.BaseURL + "/" + assetPath
}
