package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/focustrack/focustrack/server/internal/config"
)

// Gate checks the service API key on gRPC calls and REST requests.
type Gate struct {
	header string
	key    string
	open   map[string]bool // HTTP paths served without a key
}

// New returns a Gate for cfg. The gate is disabled (every call allowed) when
// the mode is not "apikey" or the key resolves to the empty string.
func New(cfg config.AuthConfig, openPaths ...string) *Gate {
	g := &Gate{header: cfg.EffectiveHeader(), open: make(map[string]bool, len(openPaths))}
	if cfg.Mode == "apikey" {
		g.key = cfg.Key()
	}
	for _, p := range openPaths {
		g.open[p] = true
	}
	return g
}

// Enabled reports whether the gate rejects calls without the key.
func (g *Gate) Enabled() bool { return g.key != "" }

func (g *Gate) allow(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(g.key)) == 1
}

// UnaryInterceptor enforces the key on every unary call. The key is read
// from the incoming metadata under the configured header; a missing or
// incorrect key returns codes.Unauthenticated.
func (g *Gate) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !g.Enabled() {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		vals := md.Get(g.header)
		if len(vals) == 0 || !g.allow(vals[0]) {
			slog.Debug("auth: rejected grpc call", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

// Middleware enforces the key on HTTP requests, read from the configured
// header. Requests without it get 401. Open paths and requests while the
// gate is disabled pass through.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() || g.open[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !g.allow(r.Header.Get(g.header)) {
			slog.Debug("auth: rejected http request", "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"}) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r)
	})
}
