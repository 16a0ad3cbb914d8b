package testutil

import (
	"net/http"

	id "riskaccept/pkg/domain"
	"riskaccept/pkg/requestcontext"
)

// WithActor adds an acting user to the request context, as the auth
// middleware does for a verified bearer token. Invalid ids are ignored.
func WithActor(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}
