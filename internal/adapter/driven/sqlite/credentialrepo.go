package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
	"github.com/ericfisherdev/sungazer/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Credential values are encrypted with AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
	now func() time.Time
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (all operations will return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key, now: time.Now}
}

// Set stores or replaces the credential for the given vendor.
func (r *CredentialRepo) Set(ctx context.Context, vendor model.Vendor, secret string) error {
	if secret == "" {
		return fmt.Errorf("set credential %s: secret is empty", vendor)
	}

	encrypted, err := r.encrypt(secret)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO credentials (vendor, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(vendor) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err = r.db.Writer.ExecContext(ctx, query, string(vendor), encrypted, formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("set credential %s: %w", vendor, err)
	}
	return nil
}

// Get retrieves the decrypted credential for the given vendor.
// Returns driven.ErrCredentialNotFound if none is stored.
func (r *CredentialRepo) Get(ctx context.Context, vendor model.Vendor) (model.Credential, error) {
	if r.key == nil {
		return model.Credential{}, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT vendor, value, updated_at FROM credentials WHERE vendor = ?`
	cred, err := r.scanCredential(r.db.Reader.QueryRowContext(ctx, query, string(vendor)))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, driven.ErrCredentialNotFound
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("get credential %s: %w", vendor, err)
	}
	return cred, nil
}

// List returns all stored credentials with decrypted values.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT vendor, value, updated_at FROM credentials ORDER BY vendor`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		cred, err := r.scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Delete removes the credential for the given vendor.
// Returns driven.ErrCredentialNotFound if none was stored.
func (r *CredentialRepo) Delete(ctx context.Context, vendor model.Vendor) error {
	const query = `DELETE FROM credentials WHERE vendor = ?`
	result, err := r.db.Writer.ExecContext(ctx, query, string(vendor))
	if err != nil {
		return fmt.Errorf("delete credential %s: %w", vendor, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return driven.ErrCredentialNotFound
	}
	return nil
}

func (r *CredentialRepo) scanCredential(s scanner) (model.Credential, error) {
	var cred model.Credential
	var vendor, encrypted, updatedAt string
	if err := s.Scan(&vendor, &encrypted, &updatedAt); err != nil {
		return model.Credential{}, err
	}
	cred.Vendor = model.Vendor(vendor)

	plaintext, err := r.decrypt(encrypted)
	if err != nil {
		return model.Credential{}, fmt.Errorf("decrypt credential %s: %w", vendor, err)
	}
	cred.Secret = plaintext

	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse updated_at for credential %s: %w", vendor, err)
	}
	return cred, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
