package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/dukalink-backend/api/responses"
	"github.com/angelmondragon/dukalink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dukalink-backend/pkg/errors"
	"github.com/angelmondragon/dukalink-backend/pkg/logger"
)

// RequireRole admits callers whose token carries one of roles. It must run
// after Auth.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		allowed[string(role)] = struct{}{}
		names = append(names, string(role))
	}
	denied := pkgerrors.New(pkgerrors.CodeForbidden, strings.Join(names, " or ")+" role required")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				responses.WriteError(r.Context(), logg, w, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
