package recipients

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/speedrun-hq/speedrun-intents/pkg/models"
)

// PostgresStore persists manifests in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and creates the schema if needed
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipient_manifests (
		intent_id VARCHAR(128) PRIMARY KEY,
		chain_id BIGINT NOT NULL,
		manifest JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_manifests_chain ON recipient_manifests(chain_id);
	`

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) Put(ctx context.Context, manifest *models.RecipientManifest) error {
	if err := Validate(manifest); err != nil {
		return err
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("cannot marshal manifest to JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO recipient_manifests (intent_id, chain_id, manifest, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (intent_id) DO UPDATE SET
		chain_id = EXCLUDED.chain_id,
		manifest = EXCLUDED.manifest,
		updated_at = NOW()
	`
	_, err = s.db.ExecContext(ctx, query, manifest.IntentID, manifest.ChainID, data)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, intentID string) (*models.RecipientManifest, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT manifest FROM recipient_manifests WHERE intent_id = $1", intentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var m models.RecipientManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt manifest for intent %s: %w", intentID, err)
	}
	return &m, nil
}

func (s *PostgresStore) Delete(ctx context.Context, intentID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM recipient_manifests WHERE intent_id = $1", intentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT intent_id FROM recipient_manifests ORDER BY intent_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
