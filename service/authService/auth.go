// Package authService issues and verifies session tokens.
// A session is an HS256 JWT in the "auth-token" cookie plus a random fingerprint in the
// "Secure-Fgp" cookie. The token carries a bcrypt hash of the fingerprint, so a stolen token
// is useless without the fingerprint cookie.
package authService

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Techyishu/writerly/models"
)

const (
	TokenCookieName       = "auth-token"
	FingerprintCookieName = "Secure-Fgp"

	// DefaultTokenTTL - session lifetime
	DefaultTokenTTL = 24 * time.Hour
)

var (
	// ErrNoToken - request carries no session cookie
	ErrNoToken = errors.New("no session token")
	// ErrInvalidToken - token is malformed, expired or not signed by us
	ErrInvalidToken = errors.New("invalid session token")
	// ErrInvalidFingerprint - fingerprint cookie is missing or does not match the token
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
)

// Authenticator - the only place that decides who the caller is
type Authenticator struct {
	secret        []byte
	ttl           time.Duration
	secureCookies bool
	now           func() time.Time
}

// NewAuthenticator - secureCookies sets the Secure attribute, disable it only for plain HTTP development
func NewAuthenticator(secret []byte, ttl time.Duration, secureCookies bool) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Authenticator{
		secret:        secret,
		ttl:           ttl,
		secureCookies: secureCookies,
		now:           time.Now,
	}
}

// Authenticate - verifies session cookies of the request
func (a *Authenticator) Authenticate(r *http.Request) (*models.Principal, error) {
	tokenCookie, err := r.Cookie(TokenCookieName)
	if err != nil || tokenCookie.Value == "" {
		return nil, ErrNoToken
	}

	claims := &models.TokenClaims{}
	_, err = jwt.ParseWithClaims(tokenCookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	fgpCookie, err := r.Cookie(FingerprintCookieName)
	if err != nil {
		return nil, ErrInvalidFingerprint
	}
	if err = bcrypt.CompareHashAndPassword([]byte(claims.Fingerprint), []byte(fgpCookie.Value)); err != nil {
		return nil, ErrInvalidFingerprint
	}

	return &models.Principal{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// IssueToken - starts a session for the user by setting both cookies
func (a *Authenticator) IssueToken(w http.ResponseWriter, user *models.User) error {
	rawFgp, err := generateRandomContext()
	if err != nil {
		return fmt.Errorf("generate fingerprint: %w", err)
	}

	// hash generated fingerprint for storing in JWT token
	hashedFgp, err := bcrypt.GenerateFromPassword([]byte(rawFgp), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash fingerprint: %w", err)
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := models.TokenClaims{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Fingerprint: string(hashedFgp),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	http.SetCookie(w, a.cookie(TokenCookieName, token, expiresAt))
	http.SetCookie(w, a.cookie(FingerprintCookieName, rawFgp, expiresAt))
	return nil
}

// ClearToken - ends the session
func (a *Authenticator) ClearToken(w http.ResponseWriter) {
	for _, name := range []string{TokenCookieName, FingerprintCookieName} {
		c := a.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (a *Authenticator) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteStrictMode,
	}
}

// generateRandomContext - generates fingerprint
// This function uses cryptographically secure random number generator
func generateRandomContext() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// IsUserAdmin - check if the given email is in the configured admin list. Case-insensitive
func IsUserAdmin(email string, admins []string) bool {
	email = strings.TrimSpace(email)
	for _, admin := range admins {
		if strings.EqualFold(email, strings.TrimSpace(admin)) {
			return true
		}
	}
	return false
}
