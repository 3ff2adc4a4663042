// ABOUTME: API token repository backing the gateway's bearer-token validation
// ABOUTME: Tokens map a client id to a per-server access map stored as JSON

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Token is an opaque API token granting a client access to a set of servers.
// Presence in the tokens table is what makes a token valid; the access map
// scopes which servers the holder may reach downstream.
type Token struct {
	ID           string
	ClientID     string
	IssuedAt     time.Time
	ServerAccess map[string]bool // server id -> allow/deny
}

// TokenRepository persists API tokens in the main database.
type TokenRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewTokenRepository creates a repository bound to the given handle,
// creating the tokens table if it does not exist.
func NewTokenRepository(ctx context.Context, db *DB) (*TokenRepository, error) {
	r := &TokenRepository{
		db:     db,
		logger: slog.Default().With("component", "token-repo"),
	}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *TokenRepository) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tokens (
			id            TEXT PRIMARY KEY,
			client_id     TEXT NOT NULL,
			issued_at     INTEGER NOT NULL,
			server_access TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating tokens table: %w", err)
	}
	return nil
}

// Create generates and stores a new token for the given client.
// The returned token id is the bearer credential handed to the client.
func (r *TokenRepository) Create(ctx context.Context, clientID string, serverAccess map[string]bool) (*Token, error) {
	if serverAccess == nil {
		serverAccess = map[string]bool{}
	}
	t := &Token{
		ID:           "mcpr_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		ClientID:     clientID,
		IssuedAt:     time.Now().UTC(),
		ServerAccess: serverAccess,
	}

	accessJSON, err := json.Marshal(t.ServerAccess)
	if err != nil {
		return nil, fmt.Errorf("encoding server access: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO tokens (id, client_id, issued_at, server_access) VALUES (?, ?, ?, ?)",
		t.ID, t.ClientID, t.IssuedAt.Unix(), string(accessJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting token: %w", err)
	}

	r.logger.Info("created token", "client_id", clientID, "servers", len(serverAccess))
	return t, nil
}

// Get retrieves a token by id.
// Returns ErrNotFound if the token doesn't exist.
func (r *TokenRepository) Get(ctx context.Context, id string) (*Token, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, client_id, issued_at, server_access FROM tokens WHERE id = ?", id)

	t, err := scanToken(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return t, nil
}

// List returns all tokens ordered by issue time, newest first.
func (r *TokenRepository) List(ctx context.Context) ([]*Token, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, client_id, issued_at, server_access FROM tokens ORDER BY issued_at DESC")
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		t, err := scanToken(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning token row: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating token rows: %w", err)
	}
	return tokens, nil
}

// Delete revokes a token by id.
// Returns ErrNotFound if the token doesn't exist.
func (r *TokenRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	r.logger.Info("revoked token", "id", id)
	return nil
}

func scanToken(scan func(...any) error) (*Token, error) {
	var t Token
	var issuedAt int64
	var accessJSON string

	if err := scan(&t.ID, &t.ClientID, &issuedAt, &accessJSON); err != nil {
		return nil, err
	}

	t.IssuedAt = time.Unix(issuedAt, 0).UTC()
	if err := json.Unmarshal([]byte(accessJSON), &t.ServerAccess); err != nil {
		return nil, fmt.Errorf("decoding server access: %w", err)
	}
	return &t, nil
}
