package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionCookie = "admin_session"
	issuer        = "vpn-shop-bot"
)

var errNoToken = errors.New("missing token")

// AuthManager mints and verifies admin session tokens. The same JWT is accepted as an
// HttpOnly cookie or as a bearer token.
type AuthManager struct {
	secret []byte
	apiKey string
	domain string
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthManager(secret, apiKey string, secure bool, domain string, ttl time.Duration) *AuthManager {
	return &AuthManager{
		secret: []byte(secret),
		apiKey: apiKey,
		domain: domain,
		secure: secure,
		ttl:    ttl,
		now:    time.Now,
	}
}

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// CheckKey compares the presented admin key in constant time. An unset key matches nothing.
func (a *AuthManager) CheckKey(key string) bool {
	if a.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a.apiKey), []byte(key)) == 1
}

// Mint signs a fresh session and sets it as a cookie on w.
func (a *AuthManager) Mint(w http.ResponseWriter) (string, error) {
	now := a.now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, a.cookie(signed, int(a.ttl.Seconds())))
	return signed, nil
}

func (a *AuthManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, a.cookie("", -1))
}

func (a *AuthManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Domain:   a.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ParseFromRequest reads "Authorization: Bearer <jwt>" first, then the session cookie.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
		return nil, errNoToken
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return a.parse(c.Value)
	}
	return nil, errNoToken
}

func (a *AuthManager) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !tkn.Valid || claims.Role != "admin" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
