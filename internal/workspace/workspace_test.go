// ABOUTME: Tests for the workspace registry
// ABOUTME: Covers default seeding, TOML round-trip, and validation

package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_SeedsDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()

	reg, err := LoadRegistry(dir)
	require.NoError(t, err)

	active := reg.Active()
	assert.Equal(t, DefaultWorkspaceID, active.ID)
	assert.Equal(t, KindLocal, active.Kind)
	assert.Equal(t, filepath.Join(dir, MainDatabaseFile), active.Local.DatabasePath)
	assert.True(t, active.IsMain())
}

func TestRegistry_SaveAndReload(t *testing.T) {
	dir := t.TempDir()

	reg, err := LoadRegistry(dir)
	require.NoError(t, err)

	require.NoError(t, reg.Add(Workspace{
		ID:     "staging",
		Name:   "Staging",
		Kind:   KindRemote,
		Remote: RemoteConfig{APIURL: "https://staging.example.com"},
	}))
	require.NoError(t, reg.SetActive("staging"))
	require.NoError(t, reg.Save())

	reloaded, err := LoadRegistry(dir)
	require.NoError(t, err)

	assert.Equal(t, "staging", reloaded.Active().ID)
	assert.Len(t, reloaded.List(), 2)

	ws, err := reloaded.Get("staging")
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com", ws.Remote.APIURL)
	assert.False(t, ws.IsMain())
}

func TestRegistry_AddDuplicate(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)

	w := Workspace{
		ID:    "extra",
		Kind:  KindLocal,
		Local: LocalConfig{DatabasePath: "/tmp/extra.db"},
	}
	require.NoError(t, reg.Add(w))
	assert.Error(t, reg.Add(w))
}

func TestRegistry_RemoveActiveRefused(t *testing.T) {
	reg, err := LoadRegistry(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, reg.Remove(DefaultWorkspaceID))
}

func TestWorkspace_Validate(t *testing.T) {
	assert.Error(t, Workspace{Kind: KindLocal}.Validate())
	assert.Error(t, Workspace{ID: "x", Kind: KindLocal}.Validate())
	assert.Error(t, Workspace{ID: "x", Kind: KindRemote}.Validate())
	assert.Error(t, Workspace{ID: "x", Kind: "cloud"}.Validate())

	assert.NoError(t, Workspace{
		ID: "x", Kind: KindLocal, Local: LocalConfig{DatabasePath: "/tmp/x.db"},
	}.Validate())
	assert.NoError(t, Workspace{
		ID: "x", Kind: KindRemote, Remote: RemoteConfig{APIURL: "https://example.com"},
	}.Validate())
}

func TestLoadRegistry_RejectsUnknownActive(t *testing.T) {
	dir := t.TempDir()
	contents := `
active = "ghost"

[[workspaces]]
id = "real"
name = "Real"
kind = "local"

[workspaces.local]
database_path = "/tmp/real.db"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workspaces.toml"), []byte(contents), 0o644))

	_, err := LoadRegistry(dir)
	assert.ErrorContains(t, err, "ghost")
}
