package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/chhavsingh/180protocol/crypto"
	"github.com/chhavsingh/180protocol/protocol"
)

// PostgresStore implements ReceiptStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// The receipt is stored as the exact JSON that was signed; the other
// columns exist for lookups.
func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS delivery_receipts (
		id UUID PRIMARY KEY,
		sequence BIGINT NOT NULL,
		recipient VARCHAR(64) NOT NULL,
		role VARCHAR(32) NOT NULL,
		data_type VARCHAR(256) NOT NULL,
		cycle_id UUID NOT NULL,
		receipt BYTEA NOT NULL,
		signature BYTEA NOT NULL,
		signer_public_key VARCHAR(128) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_recipient ON delivery_receipts(recipient);
	CREATE INDEX IF NOT EXISTS idx_receipts_created ON delivery_receipts(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveReceipt persists a signed receipt.
func (s *PostgresStore) SaveReceipt(ctx context.Context, signed *protocol.Signed[DeliveryReceipt]) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	r := signed.Object
	body, err := protocol.SerializeMessage(r)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO delivery_receipts
		(id, sequence, recipient, role, data_type, cycle_id, receipt, signature, signer_public_key, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		int64(r.Sequence),
		r.Recipient,
		string(r.Role),
		r.DataType,
		r.CycleID,
		body,
		signed.Signature.Bytes(),
		signed.PublicKey.String(),
		r.CreatedAt,
	)
	return err
}

// LoadReceipt retrieves one receipt by id.
func (s *PostgresStore) LoadReceipt(ctx context.Context, id string) (*protocol.Signed[DeliveryReceipt], error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT receipt, signature, signer_public_key
		FROM delivery_receipts
		WHERE id = $1
	`, id)

	signed, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReceiptNotFound
	}
	return signed, err
}

// ListReceipts retrieves all receipts, oldest first.
func (s *PostgresStore) ListReceipts(ctx context.Context) ([]*protocol.Signed[DeliveryReceipt], error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT receipt, signature, signer_public_key
		FROM delivery_receipts
		ORDER BY created_at, sequence
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*protocol.Signed[DeliveryReceipt]
	for rows.Next() {
		signed, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, signed)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*protocol.Signed[DeliveryReceipt], error) {
	var (
		body         []byte
		signature    []byte
		signerPubKey string
	)
	if err := row.Scan(&body, &signature, &signerPubKey); err != nil {
		return nil, err
	}

	signerKey, err := crypto.NewPublicKeyFromString(signerPubKey)
	if err != nil {
		return nil, err
	}
	var r DeliveryReceipt
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}

	return &protocol.Signed[DeliveryReceipt]{
		PublicKey: signerKey,
		Signature: crypto.NewSignature(signature),
		Object:    &r,
	}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
