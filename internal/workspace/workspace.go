// ABOUTME: Workspace definitions and the TOML-backed workspace registry
// ABOUTME: Each workspace names a storage location, either a local database or a remote API

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// Workspace kinds. Local workspaces own a SQLite database file; remote
// workspaces point at another router's API and carry no local storage.
const (
	KindLocal  = "local"
	KindRemote = "remote"
)

// MainDatabaseFile is the filename of the primary workspace database. The
// workspace whose database path ends in this name is the main workspace and
// is the only one the switcher migrates.
const MainDatabaseFile = "mcprouter.db"

// DefaultWorkspaceID identifies the workspace seeded into a fresh registry.
const DefaultWorkspaceID = "local-default"

// Workspace describes one selectable storage target.
type Workspace struct {
	ID     string       `toml:"id"`
	Name   string       `toml:"name"`
	Kind   string       `toml:"kind"`
	Local  LocalConfig  `toml:"local,omitempty"`
	Remote RemoteConfig `toml:"remote,omitempty"`
}

// LocalConfig holds settings for a local workspace.
type LocalConfig struct {
	DatabasePath string `toml:"database_path"`
}

// RemoteConfig holds settings for a remote workspace.
type RemoteConfig struct {
	APIURL string `toml:"api_url"`
}

// IsMain reports whether this workspace is the main local workspace.
func (w Workspace) IsMain() bool {
	return w.Kind == KindLocal && filepath.Base(w.Local.DatabasePath) == MainDatabaseFile
}

// Validate checks the workspace definition for internal consistency.
func (w Workspace) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("workspace id is required")
	}
	switch w.Kind {
	case KindLocal:
		if w.Local.DatabasePath == "" {
			return fmt.Errorf("workspace %s: local.database_path is required", w.ID)
		}
	case KindRemote:
		if w.Remote.APIURL == "" {
			return fmt.Errorf("workspace %s: remote.api_url is required", w.ID)
		}
	default:
		return fmt.Errorf("workspace %s: unknown kind %q", w.ID, w.Kind)
	}
	return nil
}

// registryFile is the on-disk TOML shape of the registry.
type registryFile struct {
	Active     string      `toml:"active"`
	Workspaces []Workspace `toml:"workspaces"`
}

// Registry is the persistent collection of known workspaces plus the id of
// the active one. It is loaded from and saved to a TOML file under the data
// directory.
type Registry struct {
	path       string
	active     string
	workspaces map[string]Workspace
}

// LoadRegistry reads the registry from dataDir/workspaces.toml. A missing
// file yields a registry seeded with the default main workspace, so a fresh
// installation works without any setup step.
func LoadRegistry(dataDir string) (*Registry, error) {
	path := filepath.Join(dataDir, "workspaces.toml")

	r := &Registry{
		path:       path,
		workspaces: make(map[string]Workspace),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		r.seedDefault(dataDir)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading workspace registry: %w", err)
	}

	var file registryFile
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("parsing workspace registry: %w", err)
	}

	for _, w := range file.Workspaces {
		if err := w.Validate(); err != nil {
			return nil, fmt.Errorf("workspace registry: %w", err)
		}
		if _, exists := r.workspaces[w.ID]; exists {
			return nil, fmt.Errorf("workspace registry: duplicate id %q", w.ID)
		}
		r.workspaces[w.ID] = w
	}

	if len(r.workspaces) == 0 {
		r.seedDefault(dataDir)
		return r, nil
	}

	r.active = file.Active
	if _, ok := r.workspaces[r.active]; !ok {
		return nil, fmt.Errorf("workspace registry: active workspace %q not found", file.Active)
	}

	return r, nil
}

func (r *Registry) seedDefault(dataDir string) {
	def := Workspace{
		ID:   DefaultWorkspaceID,
		Name: "Local",
		Kind: KindLocal,
		Local: LocalConfig{
			DatabasePath: filepath.Join(dataDir, MainDatabaseFile),
		},
	}
	r.workspaces[def.ID] = def
	r.active = def.ID
}

// Save writes the registry back to its TOML file.
func (r *Registry) Save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	file := registryFile{
		Active:     r.active,
		Workspaces: r.List(),
	}

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("writing workspace registry: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(file); err != nil {
		return fmt.Errorf("encoding workspace registry: %w", err)
	}
	return nil
}

// Get returns the workspace with the given id.
func (r *Registry) Get(id string) (Workspace, error) {
	w, ok := r.workspaces[id]
	if !ok {
		return Workspace{}, fmt.Errorf("workspace %q not found", id)
	}
	return w, nil
}

// Active returns the currently selected workspace.
func (r *Registry) Active() Workspace {
	return r.workspaces[r.active]
}

// SetActive marks the given workspace as active. The caller is responsible
// for persisting via Save and for actually switching storage.
func (r *Registry) SetActive(id string) error {
	if _, ok := r.workspaces[id]; !ok {
		return fmt.Errorf("workspace %q not found", id)
	}
	r.active = id
	return nil
}

// Add registers a new workspace.
func (r *Registry) Add(w Workspace) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if _, exists := r.workspaces[w.ID]; exists {
		return fmt.Errorf("workspace %q already exists", w.ID)
	}
	r.workspaces[w.ID] = w
	return nil
}

// Remove deletes a workspace. The active workspace cannot be removed.
func (r *Registry) Remove(id string) error {
	if _, ok := r.workspaces[id]; !ok {
		return fmt.Errorf("workspace %q not found", id)
	}
	if id == r.active {
		return fmt.Errorf("cannot remove active workspace %q", id)
	}
	delete(r.workspaces, id)
	return nil
}

// List returns all workspaces sorted by id.
func (r *Registry) List() []Workspace {
	out := make([]Workspace, 0, len(r.workspaces))
	for _, w := range r.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
