package testutil

import (
	"net/http"

	"petregistry/pkg/requestcontext"
)

// AsActor attaches an authenticated actor to the request, the way
// RequireAuth does after validating a token.
func AsActor(req *http.Request, actorID, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actorID, role))
}

// WithBearer sets the Authorization header for tests that go through the
// real auth middleware.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
