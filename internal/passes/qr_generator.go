// Package passes issues encrypted attendee passes rendered as QR codes.
package passes

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidPass = errors.New("invalid pass")

// Pass is the payload sealed inside the QR code.
type Pass struct {
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	IssuedAt time.Time `json:"issued_at"`
}

type QRGenerator struct {
	aead cipher.AEAD
	size int
}

func NewQRGenerator(secret string) (*QRGenerator, error) {
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &QRGenerator{aead: aead, size: 256}, nil
}

// Token seals p into a URL-safe string.
func (q *QRGenerator) Token(p Pass) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, q.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := q.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// PNG renders the sealed pass as a QR code image.
func (q *QRGenerator) PNG(p Pass) ([]byte, error) {
	token, err := q.Token(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, q.size)
}

// Open reverses Token. Tampered or foreign tokens return ErrInvalidPass.
func (q *QRGenerator) Open(token string) (Pass, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) < q.aead.NonceSize() {
		return Pass{}, ErrInvalidPass
	}

	nonce, ciphertext := raw[:q.aead.NonceSize()], raw[q.aead.NonceSize():]
	data, err := q.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Pass{}, ErrInvalidPass
	}

	var p Pass
	if err := json.Unmarshal(data, &p); err != nil {
		return Pass{}, fmt.Errorf("%w: %v", ErrInvalidPass, err)
	}
	return p, nil
}
