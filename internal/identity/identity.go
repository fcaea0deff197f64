// Package identity resolves user ids to profile summaries held by the identity service.
package identity

import (
	"context"
	"strings"
)

const UnknownUsername = "Unknown User"

// Profile is the summary projected onto participants, senders and reactions.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

// Placeholder stands in for an id the identity service could not resolve.
func Placeholder(id string) Profile {
	return Profile{ID: id, Username: UnknownUsername}
}

// Resolver is what the services need from the identity service.
type Resolver interface {
	// Resolve never fails per id: unresolved ids map to Placeholder. Without a
	// credential in ctx the result is empty.
	Resolve(ctx context.Context, ids []string) (map[string]Profile, error)
	// Verify returns the subset of ids that exist. Collaborator failures are errors.
	Verify(ctx context.Context, ids []string) (map[string]Profile, error)
}

type credentialKey struct{}

// WithCredential attaches the caller's bearer token for forwarding.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey{}, token)
}

// CredentialFrom returns the forwarded bearer token, or "".
func CredentialFrom(ctx context.Context) string {
	token, _ := ctx.Value(credentialKey{}).(string)
	return token
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// Unique drops empty and repeated ids, keeping first-seen order.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
