// Package auth verifies the signed session token issued by the sign-in
// service and exposes the caller identity to handlers.
//
// Tokens are HS256 JWTs sent as "Authorization: Bearer <token>". The subject
// is the user id; name, email and picture are optional profile claims.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum HS256 secret length in bytes.
const MinSecretLength = 32

// ErrNoToken is returned when the request carries no bearer token.
var ErrNoToken = errors.New("auth: missing bearer token")

// Identity is the authenticated caller.
type Identity struct {
	ID       string
	Name     string
	Email    string
	ImageURL string
}

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by [Verifier.Middleware].
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Config configures a [Verifier].
type Config struct {
	// Secret is the shared HS256 signing key.
	Secret []byte

	// Issuer and Audience, when set, must match the token's iss and aud.
	Issuer   string
	Audience string

	// OnIdentity is called for every authenticated request before the next
	// handler runs.
	OnIdentity func(ctx context.Context, id Identity)
}

// Verifier validates session tokens.
type Verifier struct {
	secret     []byte
	parser     *jwt.Parser
	onIdentity func(context.Context, Identity)
}

// NewVerifier returns a Verifier for cfg. The secret must be at least
// [MinSecretLength] bytes.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: secret must be at least %d bytes", MinSecretLength)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &Verifier{secret: cfg.Secret, parser: jwt.NewParser(opts...), onIdentity: cfg.OnIdentity}, nil
}

// Verify parses and validates a token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("auth: %w", err)
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return Identity{}, errors.New("auth: token has no subject")
	}
	return Identity{
		ID:       sub,
		Name:     strings.TrimSpace(claims.Name),
		Email:    strings.TrimSpace(claims.Email),
		ImageURL: strings.TrimSpace(claims.Picture),
	}, nil
}

// VerifyRequest verifies the bearer token of r.
func (v *Verifier) VerifyRequest(r *http.Request) (Identity, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Identity{}, ErrNoToken
	}
	return v.Verify(strings.TrimSpace(token))
}

// Sign issues a token for id valid for ttl. It is used by the token minting
// command and by tests.
func Sign(cfg Config, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name:    id.Name,
		Email:   id.Email,
		Picture: id.ImageURL,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
}

// Middleware rejects requests without a valid session token with 401 and
// stores the identity in the request context otherwise.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := v.VerifyRequest(r)
		if err != nil {
			unauthorized(w)
			return
		}
		ctx := WithIdentity(r.Context(), id)
		if v.onIdentity != nil {
			v.onIdentity(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mockprep"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
