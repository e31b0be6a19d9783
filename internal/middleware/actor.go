package middleware

import (
	"net/http"

	"github.com/dukerupert/chorewheel/internal/auth"
)

// ActorHeader names who is making a change. It is recorded in rotation
// history, not checked.
const ActorHeader = "X-Actor"

// Actor stores the X-Actor header in the request context.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := auth.NewActor(r.Header.Get(ActorHeader))
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), a)))
	})
}
