// ABOUTME: Tool-server definition repository for a workspace database
// ABOUTME: Stores local and remote server entries that the aggregator dispatches to

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ServerType constants for server definitions
const (
	ServerTypeLocal  = "local"  // Spawned as a child process by the supervisor
	ServerTypeRemote = "remote" // Reached over HTTP at RemoteURL
)

// ServerDef is a tool-server definition registered in a workspace.
// ProjectID is empty for servers deliberately outside any project.
type ServerDef struct {
	ID          string
	Name        string
	ServerType  string // "local" or "remote"
	RemoteURL   string // For remote servers
	BearerToken string // Credential forwarded to remote servers
	Description string
	Version     string
	ProjectID   string
	CreatedAt   time.Time
}

// ServerRepository persists tool-server definitions in a workspace database.
type ServerRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewServerRepository creates a repository bound to the given handle,
// creating the servers table if it does not exist. The full current schema
// is created here; the shared migration list upgrades databases created by
// older releases.
func NewServerRepository(ctx context.Context, db *DB) (*ServerRepository, error) {
	r := &ServerRepository{
		db:     db,
		logger: slog.Default().With("component", "server-repo"),
	}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ServerRepository) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS servers (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			server_type  TEXT NOT NULL DEFAULT 'local',
			remote_url   TEXT,
			bearer_token TEXT,
			description  TEXT,
			version      TEXT,
			project_id   TEXT,
			created_at   INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating servers table: %w", err)
	}
	return nil
}

// Create inserts a new server definition. A missing ID is generated.
func (r *ServerRepository) Create(ctx context.Context, def *ServerDef) error {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if def.ServerType == "" {
		def.ServerType = ServerTypeLocal
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, server_type, remote_url, bearer_token, description, version, project_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		def.ID, def.Name, def.ServerType,
		nullString(def.RemoteURL), nullString(def.BearerToken),
		nullString(def.Description), nullString(def.Version),
		nullString(def.ProjectID), def.CreatedAt.Unix(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting server: %w", err)
	}

	r.logger.Debug("created server", "id", def.ID, "name", def.Name, "type", def.ServerType)
	return nil
}

const serverColumns = "id, name, server_type, remote_url, bearer_token, description, version, project_id, created_at"

// Get retrieves a server definition by id.
// Returns ErrNotFound if the server doesn't exist.
func (r *ServerRepository) Get(ctx context.Context, id string) (*ServerDef, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+serverColumns+" FROM servers WHERE id = ?", id)

	def, err := scanServer(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying server: %w", err)
	}
	return def, nil
}

// List returns all server definitions ordered by name. The caller applies
// project scoping; servers outside any project have an empty ProjectID.
func (r *ServerRepository) List(ctx context.Context) ([]*ServerDef, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+serverColumns+" FROM servers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var defs []*ServerDef
	for rows.Next() {
		def, err := scanServer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning server row: %w", err)
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating server rows: %w", err)
	}
	return defs, nil
}

// ListIDs returns the ids of all registered servers.
func (r *ServerRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM servers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying server ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning server id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a server definition by id.
// Returns ErrNotFound if the server doesn't exist.
func (r *ServerRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM servers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	r.logger.Debug("deleted server", "id", id)
	return nil
}

// scanServer scans one server row via the given scan function.
func scanServer(scan func(...any) error) (*ServerDef, error) {
	var def ServerDef
	var remoteURL, bearerToken, description, version, projectID sql.NullString
	var createdAt int64

	err := scan(&def.ID, &def.Name, &def.ServerType,
		&remoteURL, &bearerToken, &description, &version, &projectID, &createdAt)
	if err != nil {
		return nil, err
	}

	def.RemoteURL = remoteURL.String
	def.BearerToken = bearerToken.String
	def.Description = description.String
	def.Version = version.String
	def.ProjectID = projectID.String
	def.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &def, nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
