package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ValidateID checks that id is a well-formed UUID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid ID format")
	}
	return nil
}

// RequireIDs rejects requests whose named chi URL parameters are not UUIDs.
func RequireIDs(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range params {
				v := chi.URLParam(r, p)
				if v == "" {
					continue
				}
				if err := ValidateID(v); err != nil {
					writeError(w, http.StatusBadRequest, "invalid "+p)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
