package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Asset struct {
	bun.BaseModel `bun:"table:assets"`

	Path        string    `bun:"path,pk" json:"path"`
	ContentType string    `bun:"content_type,notnull" json:"content_type"`
	Size        int64     `bun:"size" json:"size"`
	Data        []byte    `bun:"data" json:"-"`
	UploaderID  string    `bun:"uploader_id" json:"uploader_id"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}
