package db

import (
	"context"
	"database/sql"
	"errors"
	"rallysphere/internal/apperr"
	"rallysphere/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// SaveAsset → insert, replacing an asset already stored at the same path
func (d *DB) SaveAsset(ctx context.Context, asset *models.Asset) error {
	_, err := d.Bun.NewInsert().
		Model(asset).
		On("CONFLICT (path) DO UPDATE").
		Set("content_type = EXCLUDED.content_type").
		Set("size = EXCLUDED.size").
		Set("data = EXCLUDED.data").
		Set("uploader_id = EXCLUDED.uploader_id").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)
	return err
}

// GetAsset → fetch one asset by path
func (d *DB) GetAsset(ctx context.Context, path string) (*models.Asset, error) {
	var asset models.Asset
	err := d.Bun.NewSelect().
		Model(&asset).
		Where("path = ?", path).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// DeleteAsset → remove by path
func (d *DB) DeleteAsset(ctx context.Context, path string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Asset)(nil)).
		Where("path = ?", path).
		Exec(ctx)
	return err
}
