// ABOUTME: Project repository providing name-to-id resolution for project scoping
// ABOUTME: Creates its own schema lazily so workspace databases need no shared migration

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Project is a named grouping of tool servers used to scope requests.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProjectRepository persists projects in a workspace database.
type ProjectRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewProjectRepository creates a repository bound to the given handle,
// creating the projects table if it does not exist.
func NewProjectRepository(ctx context.Context, db *DB) (*ProjectRepository, error) {
	r := &ProjectRepository{
		db:     db,
		logger: slog.Default().With("component", "project-repo"),
	}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ProjectRepository) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating projects table: %w", err)
	}
	return nil
}

// Create inserts a new project with the given name.
// Returns ErrDuplicate if a project with the same name exists.
func (r *ProjectRepository) Create(ctx context.Context, name string) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		p.ID, p.Name, p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("inserting project: %w", err)
	}

	r.logger.Debug("created project", "id", p.ID, "name", p.Name)
	return p, nil
}

// FindByName looks a project up by its exact name.
// Returns ErrNotFound if no project with that name exists.
func (r *ProjectRepository) FindByName(ctx context.Context, name string) (*Project, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM projects WHERE name = ?", name))
}

// Get retrieves a project by id.
// Returns ErrNotFound if the project doesn't exist.
func (r *ProjectRepository) Get(ctx context.Context, id string) (*Project, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM projects WHERE id = ?", id))
}

func (r *ProjectRepository) scanOne(row *sql.Row) (*Project, error) {
	var p Project
	var createdAt, updatedAt int64

	err := row.Scan(&p.ID, &p.Name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}

// List returns all projects ordered by name.
func (r *ProjectRepository) List(ctx context.Context) ([]*Project, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var createdAt, updatedAt int64
		if err := rows.Scan(&p.ID, &p.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		projects = append(projects, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return projects, nil
}

// Delete removes a project by id.
// Returns ErrNotFound if the project doesn't exist.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	r.logger.Debug("deleted project", "id", id)
	return nil
}
