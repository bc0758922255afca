// Package authn resolves the principal of every HTTP request and stores it in the request
// context.
package authn

import (
	"net/http"

	"github.com/topicflow/topicflow/pkg/principal"
	serverErrors "github.com/topicflow/topicflow/pkg/server/errors"
)

// Middleware rejects requests the authenticator cannot resolve. Paths in skip are served
// without a principal.
func Middleware(authenticator principal.Authenticator, next http.Handler, skip ...string) http.Handler {
	public := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		public[path] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := public[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		p, err := authenticator.Authenticate(r)
		if err != nil {
			serverErrors.Write(w, serverErrors.HandleError("", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(principal.NewContext(r.Context(), p)))
	})
}
