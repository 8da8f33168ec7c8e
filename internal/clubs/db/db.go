package db

import (
	"context"
	"database/sql"
	"errors"
	"rallysphere/internal/apperr"
	"rallysphere/internal/models"
	"time"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetClub → fetch one club by its ID
func (d *DB) GetClub(ctx context.Context, id string) (*models.Club, error) {
	var club models.Club
	err := d.Bun.NewSelect().
		Model(&club).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &club, nil
}

// ListClubs → every club, alphabetically
func (d *DB) ListClubs(ctx context.Context) ([]models.Club, error) {
	clubs := []models.Club{}
	if err := d.Bun.NewSelect().Model(&clubs).Order("name ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return clubs, nil
}

// CreateClub → insert new club
func (d *DB) CreateClub(ctx context.Context, club *models.Club) error {
	_, err := d.Bun.NewInsert().Model(club).Exec(ctx)
	return err
}

// UpdateRoster → replace members and admins
func (d *DB) UpdateRoster(ctx context.Context, id string, members, admins []string) error {
	club := &models.Club{ID: id, Members: members, Admins: admins, UpdatedAt: time.Now()}
	res, err := d.Bun.NewUpdate().
		Model(club).
		Column("members", "admins", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
