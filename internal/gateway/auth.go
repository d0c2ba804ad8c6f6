package gateway

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/soyeahso/consultant/internal/config"
)

// AuthResult is the outcome of an authentication attempt. For successful
// attempts it also carries the identity the chat engine acts for.
type AuthResult struct {
	OK        bool   `json:"ok"`
	Method    string `json:"method,omitempty"` // "token" | "password" | "jwt"
	Reason    string `json:"reason,omitempty"`
	UserID    string `json:"userId,omitempty"`
	HasAccess bool   `json:"hasAccess,omitempty"`
	// AccessToken is the verified platform token, forwarded to the chat backend.
	AccessToken string `json:"-"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode      string
	Token     string
	Password  string
	JWTSecret string
}

// AccessClaims are the claims of a platform access token: the subject is the
// user id and Access is the entitlement flag.
type AccessClaims struct {
	Access bool `json:"access"`
	jwt.RegisteredClaims
}

// ResolveAuth resolves authentication credentials from config and environment.
// Precedence: config value → env variable → empty.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, JWTSecret: cfg.JWTSecret}

	auth.Token = cfg.Token
	if auth.Token == "" {
		auth.Token = os.Getenv("CONSULTANT_GATEWAY_TOKEN")
	}

	auth.Password = cfg.Password
	if auth.Password == "" {
		auth.Password = os.Getenv("CONSULTANT_GATEWAY_PASSWORD")
	}

	if auth.Mode == "" {
		switch {
		case auth.JWTSecret != "":
			auth.Mode = "jwt"
		case auth.Password != "":
			auth.Mode = "password"
		default:
			auth.Mode = "token"
		}
	}

	return auth
}

// Authorize checks the provided ConnectAuth against the resolved server auth.
// In token and password mode the shared secret vouches for the client, so the
// client id is used as the user id and access is granted.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth, clientID string) AuthResult {
	if clientAuth == nil {
		return AuthResult{OK: false, Reason: "no credentials provided"}
	}

	switch serverAuth.Mode {
	case "token":
		if serverAuth.Token == "" {
			return AuthResult{OK: false, Reason: "server token not configured"}
		}
		if clientAuth.Token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		if !safeEqual(clientAuth.Token, serverAuth.Token) {
			return AuthResult{OK: false, Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: "token", UserID: clientID, HasAccess: true}

	case "password":
		if serverAuth.Password == "" {
			return AuthResult{OK: false, Reason: "server password not configured"}
		}
		if clientAuth.Password == "" {
			return AuthResult{OK: false, Reason: "password required"}
		}
		if !safeEqual(clientAuth.Password, serverAuth.Password) {
			return AuthResult{OK: false, Reason: "password_mismatch"}
		}
		return AuthResult{OK: true, Method: "password", UserID: clientID, HasAccess: true}

	case "jwt":
		if serverAuth.JWTSecret == "" {
			return AuthResult{OK: false, Reason: "server jwt secret not configured"}
		}
		if clientAuth.AccessToken == "" {
			return AuthResult{OK: false, Reason: "access token required"}
		}
		claims, err := ParseAccessToken(serverAuth.JWTSecret, clientAuth.AccessToken)
		if err != nil {
			return AuthResult{OK: false, Reason: "invalid_token"}
		}
		return AuthResult{
			OK:          true,
			Method:      "jwt",
			UserID:      claims.Subject,
			HasAccess:   claims.Access,
			AccessToken: clientAuth.AccessToken,
		}

	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// ParseAccessToken verifies an HS256 access token and returns its claims.
// The subject is required.
func ParseAccessToken(secret, tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// IssueAccessToken signs an access token for userID. A zero ttl issues a
// token without expiry.
func IssueAccessToken(secret, userID string, access bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Access: access,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// safeEqual performs a constant-time string comparison.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
