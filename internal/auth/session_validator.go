package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSessionIssuer = "discograph"

var (
	ErrSigningSecretRequired = errors.New("auth: session signing secret required")
	ErrCookieNameRequired    = errors.New("auth: session cookie name required")
	ErrNoSession             = errors.New("auth: no editor session")
	ErrSessionRejected       = errors.New("auth: editor session rejected")
	ErrSessionExpired        = errors.New("auth: editor session expired")
	ErrSessionWithoutEditor  = errors.New("auth: editor session names no editor")
)

// EditorClaims is the payload of an editor session. The subject repeats the editor id in decimal.
type EditorClaims struct {
	EditorID   int64  `json:"editor_id"`
	EditorName string `json:"editor_name"`
	jwt.RegisteredClaims
}

func (c EditorClaims) checkEditor() error {
	if c.EditorID <= 0 || c.Subject != strconv.FormatInt(c.EditorID, 10) {
		return ErrSessionWithoutEditor
	}
	return nil
}

// SessionValidatorConfig describes the cookie and signing secret of editor sessions.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator resolves the editor behind a session cookie.
type SessionValidator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

// NewSessionValidator builds a validator; an empty issuer means "discograph".
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrSigningSecretRequired
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrCookieNameRequired
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		secret:     append([]byte(nil), cfg.SigningSecret...),
		cookieName: cookieName,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock),
		),
	}, nil
}

// ValidateToken parses a raw session token.
func (v *SessionValidator) ValidateToken(raw string) (EditorClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EditorClaims{}, ErrNoSession
	}
	var claims EditorClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.signingKey); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return EditorClaims{}, ErrSessionExpired
		}
		return EditorClaims{}, fmt.Errorf("%w: %v", ErrSessionRejected, err)
	}
	if err := claims.checkEditor(); err != nil {
		return EditorClaims{}, err
	}
	return claims, nil
}

// ValidateRequest reads the session cookie of r.
func (v *SessionValidator) ValidateRequest(r *http.Request) (EditorClaims, error) {
	if r == nil {
		return EditorClaims{}, ErrNoSession
	}
	cookie, err := r.Cookie(v.cookieName)
	if err != nil {
		return EditorClaims{}, ErrNoSession
	}
	return v.ValidateToken(cookie.Value)
}

func (v *SessionValidator) signingKey(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}
