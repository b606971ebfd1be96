package auth

import (
	"context"
	"sort"

	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
)

// PermissionResolver computes a user's effective permission codes from their role.
// It reads the store on every call so role edits show up in the next token.
type PermissionResolver struct {
	source PermissionSource
}

func NewPermissionResolver(source PermissionSource) *PermissionResolver {
	return &PermissionResolver{source: source}
}

// Resolve returns distinct codes sorted lexicographically, or an empty slice
// when the user has no role.
func (r *PermissionResolver) Resolve(ctx context.Context, user *directory.User) ([]string, error) {
	if user == nil || user.RoleID == nil {
		return []string{}, nil
	}

	codes, err := r.source.PermissionCodesForRole(ctx, *user.RoleID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
