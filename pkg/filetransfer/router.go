package filetransfer

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parasvc/fabric/internal/logger"
	"github.com/parasvc/fabric/pkg/filetransfer/httpreq"
	"github.com/parasvc/fabric/pkg/metrics"
)

// corsPolicy is the fixed allowed-methods/headers table from spec §6 for
// one route tree. Origins are matched against the configured allow-list
// separately by corsMiddleware.
type corsPolicy struct {
	allowedMethods string
	allowedHeaders string
	exposedHeaders string
}

var (
	filesCollectionCORS = corsPolicy{
		allowedMethods: "OPTIONS, POST",
		allowedHeaders: "Accept, Authorization, Content-Length, Content-Type, Wago-Wdx-No-Auth-Popup",
		exposedHeaders: "Content-Length, Content-Type, Location, Www-Authenticate, Wago-Wdx-Auth-Token, Wago-Wdx-Auth-Token-Expiration, Wago-Wdx-Auth-Token-Type",
	}
	filesItemCORS = corsPolicy{
		allowedMethods: "OPTIONS, HEAD, GET, PUT, PATCH",
		allowedHeaders: "Accept, Authorization, Content-Length, Content-Type, Wago-Wdx-No-Auth-Popup, Range",
		exposedHeaders: "Content-Length, Content-Type, Location, Www-Authenticate, Wago-Wdx-Auth-Token, Wago-Wdx-Auth-Token-Expiration, Wago-Wdx-Auth-Token-Type, Content-Range",
	}
)

// NewRouter builds the chi router serving the /files subtree, with a
// middleware stack of request id, real IP, a request logger through
// internal/logger, panic recovery, and a request timeout.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware(allowedOrigins))
	r.Use(knownMethodOnly)

	r.Route("/files", func(r chi.Router) {
		r.Options("/", preflight(filesCollectionCORS))
		r.Post("/", h.CreateUploadID)

		r.Route("/{id}", func(r chi.Router) {
			r.Options("/", preflight(filesItemCORS))
			r.Head("/", h.HeadOrGet)
			r.Get("/", h.HeadOrGet)
			r.Put("/", h.Put)
			r.Patch("/", h.Patch)
		})
	})

	return r
}

// preflight answers an OPTIONS request with the route's fixed CORS policy;
// corsMiddleware has already set Allow-Origin for an allowed origin.
func preflight(policy corsPolicy) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Methods", policy.allowedMethods)
		header.Set("Access-Control-Allow-Headers", policy.allowedHeaders)
		header.Set("Access-Control-Expose-Headers", policy.exposedHeaders)
		w.WriteHeader(http.StatusNoContent)
	}
}

// corsMiddleware echoes Access-Control-Allow-Origin for any origin present
// in allowedOrigins (or any origin, when the list contains "*"), and for
// such an origin also sets the route's exposed-headers set so a
// non-preflighted response (GET, HEAD) still lets the browser read
// Content-Range etc.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := allowed[origin]; ok || allowAll {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					policy := filesItemCORS
					if strings.TrimSuffix(r.URL.Path, "/") == "/files" {
						policy = filesCollectionCORS
					}
					w.Header().Set("Access-Control-Expose-Headers", policy.exposedHeaders)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// knownMethodOnly rejects any method outside the RFC 7231 §4.3 / RFC 5789
// surface with 501, before chi's own routing gets a chance to 404/405 it.
func knownMethodOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := httpreq.ParseMethod(r.Method); err != nil {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isHealthPath(path string) bool {
	return strings.HasPrefix(path, "/health")
}

// requestLogger logs every request at INFO (DEBUG for health paths) and
// records it against m.
func requestLogger(m *metrics.Collectors) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			logger.Debug("file-transfer request started",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			duration := time.Since(start)

			logArgs := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", duration.String(),
			}

			if isHealthPath(r.URL.Path) {
				logger.Debug("file-transfer request completed", logArgs...)
			} else {
				logger.Info("file-transfer request completed", logArgs...)
			}
			m.RecordFileTransferRequest(r.Method, strconv.Itoa(ww.Status()), duration)
		})
	}
}
