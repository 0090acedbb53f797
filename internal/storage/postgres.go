package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Postgres stores one namespace in the client_storage table. Several agents pointed at the
// same namespace share a session.
type Postgres struct {
	db        *sqlx.DB
	namespace string
}

// NewPostgres creates a Postgres storage for namespace.
func NewPostgres(db *sqlx.DB, namespace string) *Postgres {
	return &Postgres{db: db, namespace: namespace}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT value FROM client_storage WHERE namespace = $1 AND key = $2`

	var value string
	if err := p.db.GetContext(ctx, &value, query, p.namespace, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO client_storage (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.ExecContext(ctx, query, p.namespace, key, value, time.Now())
	return err
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	const query = `DELETE FROM client_storage WHERE namespace = $1 AND key = $2`
	_, err := p.db.ExecContext(ctx, query, p.namespace, key)
	return err
}

func (p *Postgres) Keys(ctx context.Context) ([]string, error) {
	const query = `SELECT key FROM client_storage WHERE namespace = $1 ORDER BY key`

	keys := []string{}
	if err := p.db.SelectContext(ctx, &keys, query, p.namespace); err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	const query = `DELETE FROM client_storage WHERE namespace = $1`
	_, err := p.db.ExecContext(ctx, query, p.namespace)
	return err
}
