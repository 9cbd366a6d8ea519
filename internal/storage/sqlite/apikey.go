package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/bistro/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, scopes FROM api_keys WHERE key_hash = ? AND active = 1`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes, active) VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (id) DO UPDATE SET key_hash = excluded.key_hash, name = excluded.name,
			scopes = excluded.scopes, active = 1`
)

var _ auth.APIKeyRepository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.APIKeyRepository on SQLite.
// Scopes are stored as a JSON array of strings.
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository returns an APIKeyRepository that uses db.
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info   auth.APIKeyInfo
		scopes string
	)
	err := r.db.QueryRowContext(ctx, getAPIKeyByHashSQL, hash).Scan(&info.ID, &info.KeyHash, &info.Name, &scopes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAPIKeyNotFound
		}
		return nil, fmt.Errorf("finding api key by hash: %w", err)
	}
	if info.Scopes, err = decodeScopes(scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes of api key %q: %w", info.ID, err)
	}
	return &info, nil
}

// Upsert stores key, replacing any key with the same ID.
func (r *APIKeyRepository) Upsert(ctx context.Context, key auth.APIKeyInfo) error {
	if _, err := r.db.ExecContext(ctx, upsertAPIKeySQL, key.ID, key.KeyHash, key.Name, encodeScopes(key.Scopes)); err != nil {
		return fmt.Errorf("upserting api key %q: %w", key.ID, err)
	}
	return nil
}

func encodeScopes(scopes []string) string {
	var e jx.Encoder
	e.ArrStart()
	for _, s := range scopes {
		e.Str(s)
	}
	e.ArrEnd()
	return e.String()
}

func decodeScopes(raw string) ([]string, error) {
	scopes := []string{}
	err := jx.DecodeStr(raw).Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		scopes = append(scopes, s)
		return nil
	})
	return scopes, err
}
