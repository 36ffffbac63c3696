// Package actor identifies the operator performing an action.
//
// The intranet gateway authenticates users and forwards their identity in
// headers; httputil.Actor turns them into an Actor on the request context.
package actor

import (
	"context"
	"fmt"
)

// SystemID identifies background jobs
const SystemID = "system"

// Actor represents the entity performing an action in the system.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return SystemID
	}
	if a.Name == "" {
		return a.ID
	}
	return fmt.Sprintf("%s (%s)", a.Name, a.ID)
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context, or nil.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(actorContextKey).(*Actor)
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns the Actor used by scheduled jobs.
func SystemActor() *Actor {
	return &Actor{ID: SystemID, Name: "System"}
}

// IsSystem reports whether a is absent or the system actor.
func (a *Actor) IsSystem() bool {
	return a == nil || a.ID == SystemID
}
