package keyring

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ticketeer/pkg/platform/sentinel"
	"ticketeer/pkg/platform/tx"
)

const (
	settingPublicKey         = "public_key"
	settingWrappedPrivateKey = "wrapped_private_key"
)

// PostgresStore persists credentials in the admins table and the key
// hierarchy in the settings table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateCredential(ctx context.Context, cred *Credential) error {
	query := `
		INSERT INTO admins (id, username, password_verifier, wrapped_data_key, setup_complete)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query,
		cred.ID, cred.Username, cred.PasswordVerifier, cred.WrappedDataKey, cred.SetupComplete)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCredentialByUsername(ctx context.Context, username string) (*Credential, error) {
	return s.scanCredential(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_verifier, wrapped_data_key, setup_complete, created
		FROM admins WHERE username = $1
	`, username))
}

func (s *PostgresStore) FindCredential(ctx context.Context, id string) (*Credential, error) {
	return s.scanCredential(s.db.QueryRowContext(ctx, `
		SELECT id, username, password_verifier, wrapped_data_key, setup_complete, created
		FROM admins WHERE id = $1
	`, id))
}

// UpdateCredentialKeys swaps both rotation-touched fields in one statement,
// so no reader ever sees a new verifier with the old wrapped key.
func (s *PostgresStore) UpdateCredentialKeys(ctx context.Context, id, verifier string, wrappedDataKey []byte) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE admins SET password_verifier = $2, wrapped_data_key = $3 WHERE id = $1
	`, id, verifier, wrappedDataKey)
	if err != nil {
		return fmt.Errorf("update credential keys: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential keys rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindKeys(ctx context.Context) (*Keys, error) {
	pub, err := s.getSetting(ctx, settingPublicKey)
	if err != nil {
		return nil, err
	}
	wrapped, err := s.getSetting(ctx, settingWrappedPrivateKey)
	if err != nil {
		return nil, err
	}
	return &Keys{PublicKey: pub, WrappedPrivateKey: wrapped}, nil
}

// SaveSetup runs the whole bootstrap write in one transaction. Without it a
// failure between the settings rows and the admin insert would strand a key
// hierarchy with no credential, and every retry would read as a conflict.
func (s *PostgresStore) SaveSetup(ctx context.Context, keys *Keys, cred *Credential) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin setup tx: %w", err)
	}
	defer func() {
		_ = dbtx.Rollback()
	}()

	ctx = tx.WithTx(ctx, dbtx)
	if err := s.putSetting(ctx, settingPublicKey, keys.PublicKey); err != nil {
		return err
	}
	if err := s.putSetting(ctx, settingWrappedPrivateKey, keys.WrappedPrivateKey); err != nil {
		return err
	}
	if err := s.CreateCredential(ctx, cred); err != nil {
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit setup: %w", err)
	}
	return nil
}

func (s *PostgresStore) getSetting(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get setting %s: %w", key, err)
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return raw, nil
}

func (s *PostgresStore) putSetting(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	_, err := tx.Resolve(ctx, s.db).ExecContext(ctx, query, key, base64.StdEncoding.EncodeToString(value))
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) scanCredential(row *sql.Row) (*Credential, error) {
	var cred Credential
	err := row.Scan(&cred.ID, &cred.Username, &cred.PasswordVerifier,
		&cred.WrappedDataKey, &cred.SetupComplete, &cred.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	return &cred, nil
}
