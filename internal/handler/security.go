package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// APIKeyHeader is the header carrying the API key. "Authorization: Bearer"
// is accepted as well.
const APIKeyHeader = "api_key"

// RequireAPIKey rejects requests without a valid API key with 401 and tags
// the request logger with the key ID.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			key, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}

		info, err := h.keys.Verify(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		lg := zctx.From(r.Context()).With(zap.String("api_key_id", info.ID))
		next.ServeHTTP(w, r.WithContext(zctx.Base(r.Context(), lg)))
	})
}
