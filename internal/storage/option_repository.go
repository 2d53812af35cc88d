package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"aiengine/internal/config"
)

// OptionRepository reads and writes the options table, the relational
// home of domain settings (credentials, routing policy, caps).
type OptionRepository struct {
	db *DB
}

// NewOptionRepository creates a new option repository.
func NewOptionRepository(db *DB) *OptionRepository {
	return &OptionRepository{db: db}
}

// Get returns the raw stored value for a key.
func (r *OptionRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.conn.GetContext(ctx, &value, "SELECT value FROM options WHERE key = $1", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", config.ErrOptionNotFound
		}
		return "", fmt.Errorf("failed to get option: %w", err)
	}
	return value, nil
}

// Set upserts an option value.
func (r *OptionRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO options (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := r.db.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set option: %w", err)
	}
	return nil
}

// encryptedPrefix marks option values stored encrypted at rest.
const encryptedPrefix = "enc:"

// DBOptions is the database-backed config.Options: values come from the
// options table through an LRU cache, and values written with the enc:
// prefix are decrypted transparently.
type DBOptions struct {
	repo *OptionRepository
	enc  *Encryption // nil disables decryption
}

// NewDBOptions creates a DB-backed option source. enc may be nil when
// no encryption key is configured.
func NewDBOptions(db *DB, enc *Encryption) *DBOptions {
	return &DBOptions{
		repo: NewOptionRepository(db),
		enc:  enc,
	}
}

// GetOption implements config.Options.
func (o *DBOptions) GetOption(ctx context.Context, key string) (string, error) {
	if cached, ok := o.repo.db.optionCache.Get(key); ok {
		return cached.(string), nil
	}

	value, err := o.repo.Get(ctx, key)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(value, encryptedPrefix) {
		if o.enc == nil {
			return "", fmt.Errorf("option %q is encrypted but no encryption key is configured", key)
		}
		plain, err := o.enc.DecryptString(strings.TrimPrefix(value, encryptedPrefix))
		if err != nil {
			return "", fmt.Errorf("failed to decrypt option %q: %w", key, err)
		}
		value = plain
	}

	o.repo.db.optionCache.Set(key, value)
	return value, nil
}

// SetSecret encrypts and stores a credential value, invalidating the
// cache entry.
func (o *DBOptions) SetSecret(ctx context.Context, key, value string) error {
	if o.enc == nil {
		return fmt.Errorf("no encryption key configured")
	}

	sealed, err := o.enc.EncryptString(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt option %q: %w", key, err)
	}

	if err := o.repo.Set(ctx, key, encryptedPrefix+sealed); err != nil {
		return err
	}

	o.repo.db.optionCache.Delete(key)
	return nil
}

var _ config.Options = (*DBOptions)(nil)
