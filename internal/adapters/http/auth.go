package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// Claims are issued by the account service; this API only verifies them.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenBlacklist reports tokens revoked before their expiry (logout).
type TokenBlacklist interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type redisBlacklist struct {
	client redis.Cmdable
	prefix string
}

// NewRedisBlacklist checks "<prefix><token>" keys written by the account
// service on logout.
func NewRedisBlacklist(client redis.Cmdable, prefix string) TokenBlacklist {
	return &redisBlacklist{client: client, prefix: prefix}
}

func (b *redisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type TokenVerifier struct {
	secret    []byte
	blacklist TokenBlacklist
}

func NewTokenVerifier(secret string, blacklist TokenBlacklist) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), blacklist: blacklist}
}

func (v *TokenVerifier) Verify(ctx context.Context, raw string) (domain.Principal, error) {
	const op = "verify token"
	if len(v.secret) == 0 {
		return domain.Principal{}, domain.NewError(domain.ErrUnauthorized, op, "token verification is not configured")
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, op, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Principal{}, domain.WrapError(domain.ErrUnauthorized, op, jwt.ErrSignatureInvalid)
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return domain.Principal{}, domain.NewError(domain.ErrUnauthorized, op, "token has no user id")
	}
	if v.blacklist != nil {
		revoked, err := v.blacklist.IsRevoked(ctx, raw)
		if err != nil {
			return domain.Principal{}, domain.WrapError(domain.ErrTemporary, op, err)
		}
		if revoked {
			return domain.Principal{}, domain.NewError(domain.ErrUnauthorized, op, "token revoked")
		}
	}
	return domain.Principal{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}, nil
}

type principalContextKey struct{}

func principalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return p, ok
}

func authMiddleware(verifier *TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, r, domain.NewError(domain.ErrUnauthorized, "authenticate", "bearer token is required"))
				return
			}
			principal, err := verifier.Verify(r.Context(), raw)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					err = domain.NewError(domain.ErrUnauthorized, "authenticate", "invalid token")
				}
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, _ := principalFromContext(r.Context())
		if !principal.IsAdmin() {
			writeError(w, r, domain.NewError(domain.ErrForbidden, "authorize", "admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return token, token != ""
}
