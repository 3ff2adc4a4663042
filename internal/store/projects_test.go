// ABOUTME: Tests for the project repository
// ABOUTME: Covers create, name lookup, duplicates, and deletion

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRepository_CreateAndFindByName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo, err := NewProjectRepository(ctx, db)
	require.NoError(t, err)

	created, err := repo.Create(ctx, "Backend")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := repo.FindByName(ctx, "Backend")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Backend", found.Name)
}

func TestProjectRepository_FindByName_NotFound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo, err := NewProjectRepository(ctx, db)
	require.NoError(t, err)

	_, err = repo.FindByName(ctx, "Nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectRepository_DuplicateName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo, err := NewProjectRepository(ctx, db)
	require.NoError(t, err)

	_, err = repo.Create(ctx, "Backend")
	require.NoError(t, err)

	_, err = repo.Create(ctx, "Backend")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestProjectRepository_List(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo, err := NewProjectRepository(ctx, db)
	require.NoError(t, err)

	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		_, err := repo.Create(ctx, name)
		require.NoError(t, err)
	}

	projects, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 3)
	assert.Equal(t, "Alpha", projects[0].Name)
	assert.Equal(t, "Zeta", projects[2].Name)
}

func TestProjectRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	repo, err := NewProjectRepository(ctx, db)
	require.NoError(t, err)

	p, err := repo.Create(ctx, "Backend")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, p.ID))

	_, err = repo.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, p.ID), ErrNotFound)
}
