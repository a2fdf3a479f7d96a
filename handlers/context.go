// Package handlers is the thin HTTP layer: each handler parses the request,
// calls one service method and writes the pkg.JSON envelope. Business rules
// live in services.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/akinalp/agora/models"
	"github.com/akinalp/agora/pkg"
)

// contextKey keeps our context values out of other packages' namespaces.
type contextKey string

// UserContextKey carries the authenticated *models.User. AuthMiddleware sets
// it; handlers read it through currentUser.
const UserContextKey contextKey = "user"

// maxBodyBytes caps JSON request bodies. The largest accepted field is a
// 30000 character question body.
const maxBodyBytes = 128 << 10

func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found in context")
		return nil, false
	}
	return user, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", pkg.ErrBadRequest, name)
	}
	return n, nil
}
