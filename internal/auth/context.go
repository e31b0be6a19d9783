// Package auth carries the caller's identity through request contexts.
// Nothing here authenticates; the name is whatever the client declared.
package auth

import (
	"context"
	"strings"
)

// DefaultActor is recorded when a request names no actor.
const DefaultActor = "api"

type contextKey struct{}

type Actor struct {
	Name string
	// Declared is false when Name fell back to DefaultActor.
	Declared bool
}

// NewActor trims name and falls back to DefaultActor when it is blank.
func NewActor(name string) Actor {
	name = strings.TrimSpace(name)
	if name == "" {
		return Actor{Name: DefaultActor}
	}
	return Actor{Name: name, Declared: true}
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

// Name returns the actor's name, or DefaultActor when none is set.
func Name(ctx context.Context) string {
	a, ok := FromContext(ctx)
	if !ok || a.Name == "" {
		return DefaultActor
	}
	return a.Name
}
