package application

import (
	"context"
	"errors"
	"net/http"
	"strconv"
)

//Principal is the authenticated identity that the upstream gateway resolved for
//this request. Credential validation happens before the request reaches this
//service; the identity headers are trusted as-is.
type Principal struct {
	CompanyID uint
	Role      string
}

var principalCtxKey = &principalContextKey{"principal"}

type principalContextKey struct {
	name string
}

//RequirePrincipal wraps a handler so that it only runs when the gateway injected
//a usable company identity, and packs the resulting Principal into context
func RequirePrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyID, err := strconv.ParseUint(r.Header.Get("X-Company-ID"), 10, 32)
		if err != nil || companyID == 0 {
			respondWithJSON(w, http.StatusUnauthorized, errorResponse{Message: "Missing or invalid company identity"})
			return
		}

		principal := Principal{
			CompanyID: uint(companyID),
			Role:      r.Header.Get("X-User-Role"),
		}

		ctx := context.WithValue(r.Context(), principalCtxKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

//PrincipalFromContext extracts the principal, if any, from the provided context
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	principal, ok := ctx.Value(principalCtxKey).(Principal)
	if ok {
		return principal, nil
	}

	return Principal{}, errors.New("no principal in request context")
}
