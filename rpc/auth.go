package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Scopes granted by bearer tokens.
const (
	ScopeRead  = "lending:read"
	ScopeWrite = "lending:write"
	ScopeAdmin = "lending:admin"
)

// AuthConfig configures HMAC bearer token verification. An empty secret
// disables authentication.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	// Audience lists accepted audiences; a token matching any one passes.
	Audience            []string
	ScopeClaim          string
	AllowAnonymousReads bool
	ClockSkew           time.Duration
}

type contextKey string

const (
	contextKeyPrincipal contextKey = "rpc.principal"
	contextKeyRequestID contextKey = "rpc.request_id"
)

// Principal is the verified identity behind a request.
type Principal struct {
	Subject string
	Scopes  []string
}

// Has reports whether the principal carries scope.
func (p *Principal) Has(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// PrincipalFrom returns the principal attached by the auth middleware, or nil
// when the request was not authenticated.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKeyPrincipal).(*Principal)
	return p
}

type Authenticator struct {
	cfg    AuthConfig
	logger *slog.Logger
	secret []byte
}

func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, logger: logger, secret: []byte(strings.TrimSpace(cfg.HMACSecret))}
}

// Enabled reports whether tokens are verified at all.
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Middleware rejects requests without a valid token carrying every required
// scope. Read-only routes pass anonymously when AllowAnonymousReads is set.
func (a *Authenticator) Middleware(requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			if a.cfg.AllowAnonymousReads && isRead(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := extractBearer(r.Header.Get("Authorization"))
			if tokenString == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := a.parseToken(tokenString)
			if err != nil {
				a.logger.Warn("auth: token rejected",
					slog.String("request_id", RequestIDFrom(r.Context())),
					slog.String("error", err.Error()))
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			principal := &Principal{Scopes: extractScopes(claims, a.cfg.ScopeClaim)}
			principal.Subject, _ = claims.GetSubject()
			if !hasScopes(principal.Scopes, requiredScopes) {
				writeError(w, r, http.StatusForbidden, "forbidden", "insufficient scope")
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("claims not map")
	}
	if err := validateAudience(claims, a.cfg.Audience); err != nil {
		return nil, err
	}
	return claims, nil
}

func validateAudience(claims jwt.MapClaims, accepted []string) error {
	if len(accepted) == 0 {
		return nil
	}
	audience, err := claims.GetAudience()
	if err != nil {
		return err
	}
	for _, aud := range audience {
		for _, want := range accepted {
			if aud == want {
				return nil
			}
		}
	}
	return errors.New("audience mismatch")
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
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

func hasScopes(scopes []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	for _, req := range required {
		if _, ok := set[req]; !ok {
			return false
		}
	}
	return true
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func isRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
