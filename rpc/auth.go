package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"metabond/crypto"
)

const (
	defaultScopeClaim = "scope"
	defaultAdminScope = "admin"
	defaultClockSkew  = 2 * time.Minute
	minSecretBytes    = 32
)

var (
	errUnauthenticated = errors.New("authentication required")
	errInsufficient    = errors.New("insufficient scope")
)

// AuthConfig verifies HMAC-signed bearer tokens. The sub claim names the
// acting account; AdminScope gates the /v1/admin routes.
type AuthConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	ScopeClaim string
	AdminScope string
	ClockSkew  time.Duration
	// Now overrides the clock used for exp and iat checks.
	Now func() time.Time
}

func (c AuthConfig) withDefaults() AuthConfig {
	if strings.TrimSpace(c.ScopeClaim) == "" {
		c.ScopeClaim = defaultScopeClaim
	}
	if strings.TrimSpace(c.AdminScope) == "" {
		c.AdminScope = defaultAdminScope
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = defaultClockSkew
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
}

func newAuthenticator(cfg AuthConfig, logger *slog.Logger) (*authenticator, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("rpc: auth secret must be at least %d bytes", minSecretBytes)
	}
	return &authenticator{cfg: cfg.withDefaults(), logger: logger}, nil
}

type principal struct {
	caller crypto.Address
	scopes []string
}

type principalKey struct{}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// middleware binds the bearer token's subject to the request. Reads may go
// unauthenticated; every other method needs a token.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		if raw == "" {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			writeAuthError(w, errUnauthenticated)
			return
		}
		token := extractBearer(raw)
		if token == "" {
			writeAuthError(w, fmt.Errorf("malformed authorization header: %w", errUnauthenticated))
			return
		}
		p, err := a.verify(token)
		if err != nil {
			a.logger.LogAttrs(r.Context(), slog.LevelDebug, "rpc token rejected",
				slog.String("request_id", requestIDFrom(r.Context())),
				slog.String("error", err.Error()),
			)
			writeAuthError(w, fmt.Errorf("invalid token: %w", errUnauthenticated))
			return
		}
		noteCaller(r.Context(), p.caller.String())
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// requireScope rejects requests whose token lacks scope.
func (a *authenticator) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFrom(r.Context())
			if !ok {
				writeAuthError(w, errUnauthenticated)
				return
			}
			if !hasScope(p.scopes, scope) {
				writeAuthError(w, fmt.Errorf("%s required: %w", scope, errInsufficient))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *authenticator) verify(token string) (principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.cfg.Now),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return principal{}, err
	}
	if !parsed.Valid {
		return principal{}, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return principal{}, err
	}
	caller, err := crypto.DecodeAddress(strings.TrimSpace(subject))
	if err != nil {
		return principal{}, fmt.Errorf("subject: %w", err)
	}
	return principal{caller: caller, scopes: extractScopes(claims, a.cfg.ScopeClaim)}, nil
}

// IssueToken signs an HS256 token naming subject as the caller. Scopes are
// written space separated under the configured scope claim.
func IssueToken(cfg AuthConfig, subject crypto.Address, scopes []string, ttl time.Duration) (string, error) {
	if len(cfg.Secret) < minSecretBytes {
		return "", fmt.Errorf("rpc: auth secret must be at least %d bytes", minSecretBytes)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("rpc: token ttl must be positive")
	}
	cfg = cfg.withDefaults()
	now := cfg.Now()
	claims := jwt.MapClaims{
		"sub": subject.String(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	if cfg.Audience != "" {
		claims["aud"] = cfg.Audience
	}
	if len(scopes) > 0 {
		claims[cfg.ScopeClaim] = strings.Join(scopes, " ")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	switch v := claims[scopeClaim].(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func hasScope(scopes []string, required string) bool {
	for _, scope := range scopes {
		if scope == required {
			return true
		}
	}
	return false
}

func extractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeAuthError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="metabond"`)
	}
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: err.Error()}})
}
