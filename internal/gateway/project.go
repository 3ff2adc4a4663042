// ABOUTME: Project scope resolution from the x-mcpr-project request header
// ABOUTME: Maps header values to project ids, with the unassigned sentinel and opt-out

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcpr/mcpr-gateway/internal/store"
)

// ProjectHeader is the request header naming the project scope for a request
// or session.
const ProjectHeader = "x-mcpr-project"

// UnassignedSentinel selects servers that belong to no project. A blank
// header value means the same thing.
const UnassignedSentinel = "__unassigned__"

// ErrProjectNotFound indicates the header named a project that does not
// exist. Callers translate it to a client error, not a server fault.
var ErrProjectNotFound = errors.New("project not found")

// ProjectLookup is the slice of the project store the resolver needs.
type ProjectLookup interface {
	FindByName(ctx context.Context, name string) (*store.Project, error)
}

// Scope is the outcome of resolving a project header.
//
// Filtered false means the caller sees every server regardless of project.
// Filtered true with an empty ProjectID restricts to servers assigned to no
// project.
type Scope struct {
	ProjectID string
	Filtered  bool
}

// ProjectResolver turns header values into project scopes.
type ProjectResolver struct {
	projects       ProjectLookup
	skipValidation bool
	logger         *slog.Logger
}

// NewProjectResolver creates a resolver backed by the given project lookup.
// When skipValidation is set, named projects pass through as-is without a
// store lookup; remote workspaces use this because project names are
// validated on the remote side.
func NewProjectResolver(projects ProjectLookup, skipValidation bool) *ProjectResolver {
	return &ProjectResolver{
		projects:       projects,
		skipValidation: skipValidation,
		logger:         slog.Default().With("component", "project"),
	}
}

// Resolve maps a header value to a scope. present is whether the header
// appeared on the request at all; an absent header disables filtering
// entirely, which is distinct from a present-but-blank one.
func (r *ProjectResolver) Resolve(ctx context.Context, value string, present bool) (Scope, error) {
	if !present {
		return Scope{}, nil
	}

	value = strings.TrimSpace(value)
	if value == "" || value == UnassignedSentinel {
		return Scope{ProjectID: "", Filtered: true}, nil
	}

	if r.skipValidation {
		return Scope{ProjectID: value, Filtered: true}, nil
	}

	p, err := r.projects.FindByName(ctx, value)
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Debug("rejected unknown project", "name", value)
		return Scope{}, fmt.Errorf("%w: %q", ErrProjectNotFound, value)
	}
	if err != nil {
		return Scope{}, fmt.Errorf("resolving project %q: %w", value, err)
	}

	return Scope{ProjectID: p.ID, Filtered: true}, nil
}
