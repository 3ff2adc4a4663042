// ABOUTME: Tests for the workspace switcher
// ABOUTME: Covers migration gating, failure recovery, reset hooks, and serialization

package workspace

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpr/mcpr-gateway/internal/migrate"
	"github.com/mcpr/mcpr-gateway/internal/store"
)

type recordingStopper struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingStopper) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func testEngine(migrations ...migrate.Migration) *migrate.Engine {
	return migrate.NewEngine(migrations)
}

func TestSwitcher_SwitchToMainRunsMigrations(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)

	var applied int
	engine := testEngine(migrate.Migration{
		ID: "001",
		Apply: func(ctx context.Context, db *store.DB) error {
			applied++
			return nil
		},
	})

	sw := NewSwitcher(reg, engine, nil)
	defer sw.Close()

	require.NoError(t, sw.SwitchTo(context.Background(), DefaultWorkspaceID))
	assert.Equal(t, 1, applied)

	db, err := sw.Current()
	require.NoError(t, err)
	assert.NotNil(t, db)

	ws, err := sw.CurrentWorkspace()
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkspaceID, ws.ID)
}

func TestSwitcher_NonMainWorkspaceSkipsMigrations(t *testing.T) {
	dir := t.TempDir()
	reg, err := LoadRegistry(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Add(Workspace{
		ID:    "scratch",
		Kind:  KindLocal,
		Local: LocalConfig{DatabasePath: filepath.Join(dir, "scratch.db")},
	}))

	var applied int
	engine := testEngine(migrate.Migration{
		ID: "001",
		Apply: func(ctx context.Context, db *store.DB) error {
			applied++
			return nil
		},
	})

	sw := NewSwitcher(reg, engine, nil)
	defer sw.Close()

	require.NoError(t, sw.SwitchTo(context.Background(), "scratch"))
	assert.Equal(t, 0, applied)
}

func TestSwitcher_FailedMigrationLeavesNoActiveWorkspace(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)

	boom := errors.New("boom")
	engine := testEngine(migrate.Migration{
		ID: "001",
		Apply: func(ctx context.Context, db *store.DB) error {
			return boom
		},
	})

	sw := NewSwitcher(reg, engine, nil)
	defer sw.Close()

	err = sw.SwitchTo(context.Background(), DefaultWorkspaceID)
	require.ErrorIs(t, err, boom)

	_, err = sw.Current()
	assert.Error(t, err)
	_, err = sw.CurrentWorkspace()
	assert.Error(t, err)
}

func TestSwitcher_StopsServersBeforeSwitching(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)

	stopper := &recordingStopper{}
	sw := NewSwitcher(reg, testEngine(), stopper)
	defer sw.Close()

	require.NoError(t, sw.SwitchTo(context.Background(), DefaultWorkspaceID))
	assert.Equal(t, 1, stopper.calls)
}

func TestSwitcher_ResetHooksFireAfterSwitch(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)

	sw := NewSwitcher(reg, testEngine(), nil)
	defer sw.Close()

	var resets int
	sw.OnReset(func() { resets++ })

	require.NoError(t, sw.SwitchTo(context.Background(), DefaultWorkspaceID))
	require.NoError(t, sw.SwitchTo(context.Background(), DefaultWorkspaceID))
	assert.Equal(t, 2, resets)
}

func TestSwitcher_RemoteWorkspaceHasNoLocalHandle(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, reg.Add(Workspace{
		ID:     "hub",
		Kind:   KindRemote,
		Remote: RemoteConfig{APIURL: "https://hub.example.com"},
	}))

	sw := NewSwitcher(reg, testEngine(), nil)
	defer sw.Close()

	require.NoError(t, sw.SwitchTo(context.Background(), "hub"))
	assert.True(t, sw.IsRemote())

	_, err = sw.Current()
	assert.Error(t, err)

	ws, err := sw.CurrentWorkspace()
	require.NoError(t, err)
	assert.Equal(t, "hub", ws.ID)
}

func TestSwitcher_ConcurrentSwitchesSerialize(t *testing.T) {
	dir := t.TempDir()
	reg, err := LoadRegistry(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Add(Workspace{
		ID:    "other",
		Kind:  KindLocal,
		Local: LocalConfig{DatabasePath: filepath.Join(dir, "other.db")},
	}))

	sw := NewSwitcher(reg, testEngine(), nil)
	defer sw.Close()

	var wg sync.WaitGroup
	targets := []string{DefaultWorkspaceID, "other", DefaultWorkspaceID, "other"}
	for _, id := range targets {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, sw.SwitchTo(context.Background(), id))
		}(id)
	}
	wg.Wait()

	// Whichever switch landed last, the switcher ends in a coherent state
	ws, err := sw.CurrentWorkspace()
	require.NoError(t, err)
	db, err := sw.Current()
	require.NoError(t, err)
	assert.Equal(t, ws.Local.DatabasePath, db.Path())
}

func TestSwitcher_CloseReleasesHandle(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)

	sw := NewSwitcher(reg, testEngine(), nil)
	require.NoError(t, sw.SwitchTo(context.Background(), DefaultWorkspaceID))
	require.NoError(t, sw.Close())

	_, err = sw.Current()
	assert.Error(t, err)
}
