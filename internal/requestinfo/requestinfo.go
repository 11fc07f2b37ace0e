//
//  internal/requestinfo/requestinfo.go
//
//  Per-request metadata: request ID, coarse user-agent fingerprint, and
//  arrival timestamp.  The struct is inert and safe to log.
//
//  Client IP and geolocation are deliberately absent.  An anonymous open
//  must not carry anything that points back to the reader.
//
//  Dependencies
//  • github.com/avct/uasurfer  (via internal/ua)
//  • github.com/google/uuid    (request IDs)
//

package requestinfo

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/mailingtools/internal/ua"
)

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

// RequestInfo is stored in the request context by Enrich.
type RequestInfo struct {
	ID        string
	UA        ua.Info
	Path      string
	Timestamp time.Time
}

type ctxKey struct{}

// FromContext returns the pointer previously stored by Enrich.
// It returns nil if the middleware has not run.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// NewContext attaches info to ctx.  Tests use it to bypass Enrich.
func NewContext(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

/*──────────────────────────── middleware ───────────────────────────────────*/

// Enrich wraps an http.Handler, attaches *RequestInfo, and forwards.
// An inbound X-Request-ID is kept when it parses as a UUID.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		info := &RequestInfo{
			ID:        id,
			UA:        ua.Parse(r.UserAgent()),
			Path:      r.URL.Path,
			Timestamp: time.Now().UTC(),
		}

		zap.S().Debugw("request info",
			"request_id", info.ID,
			"browser", info.UA.Browser,
			"device", info.UA.Device,
			"bot", info.UA.IsBot,
			"mail_proxy", info.UA.MailProxy,
			"path", info.Path,
		)

		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), info)))
	})
}
