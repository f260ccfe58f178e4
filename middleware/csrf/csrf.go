// Package csrf protects the account forms with stateless double-submit
// tokens. Tokens are HMAC signed and bound to the caller, so no server side
// storage is required.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMissing = errors.New("csrf token missing")
	ErrTokenInvalid = errors.New("csrf token invalid")
	ErrTokenExpired = errors.New("csrf token expired")
	ErrNoSigningKey = errors.New("csrf signing key required")
)

const (
	// DefaultFieldName is the hidden form field carrying the token.
	DefaultFieldName = "_csrf"
	// DefaultHeaderName is the header fetch based clients send the token in.
	DefaultHeaderName = "X-CSRF-Token"
	// DefaultContextKey is where the minted token is stored on the request.
	DefaultContextKey = "csrf_token"
	// DefaultHelpersKey is the locals key the view helpers are merged under.
	DefaultHelpersKey = "template_helpers"
	// DefaultMaxAge bounds how long a minted token stays valid.
	DefaultMaxAge = 12 * time.Hour

	nonceLength = 16
)

// Config tunes the middleware. SigningKey is the only required field; it is
// stretched through SHA-256 so any non-empty secret works.
type Config struct {
	SigningKey []byte

	FieldName  string
	HeaderName string
	ContextKey string
	HelpersKey string

	MaxAge time.Duration

	// Skip short-circuits the middleware for matching requests.
	Skip func(router.Context) bool

	ErrorHandler router.ErrorHandler

	// DisableHelpers leaves the template helper map out of locals.
	DisableHelpers bool
}

// New returns middleware that mints a token for every request and validates
// it on mutating methods.
func New(config ...Config) router.MiddlewareFunc {
	cfg := withDefaults(config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return ctx.Next()
			}

			if len(cfg.SigningKey) == 0 {
				return cfg.ErrorHandler(ctx, ErrNoSigningKey)
			}

			scope := callerScope(ctx)

			token, err := mintToken(cfg, scope)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			ctx.Locals(cfg.ContextKey+"_field", cfg.FieldName)
			ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)
			if !cfg.DisableHelpers {
				ctx.LocalsMerge(cfg.HelpersKey, FormHelpers(ctx, cfg.ContextKey))
			}

			if safeMethod(ctx.Method()) {
				return ctx.Next()
			}

			submitted := submittedToken(ctx, cfg)
			if submitted == "" {
				return cfg.ErrorHandler(ctx, ErrTokenMissing)
			}

			if err := checkToken(cfg, scope, submitted); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return ctx.Next()
		}
	}
}

func withDefaults(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.FieldName == "" {
		cfg.FieldName = DefaultFieldName
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.HelpersKey == "" {
		cfg.HelpersKey = DefaultHelpersKey
	}

	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = rejectRequest
	}

	return cfg
}

func safeMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS", "TRACE":
		return true
	}
	return false
}

// mintToken signs expiry, a random nonce, and the caller scope. The scope is
// digested before it enters the payload so it can never collide with the
// separator.
func mintToken(cfg Config, scope string) (string, error) {
	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	expiresAt := time.Now().UTC().Add(cfg.MaxAge).Unix()
	payload := fmt.Sprintf("%d|%s|%s", expiresAt, hex.EncodeToString(nonce), scope)
	signature := sign(cfg.SigningKey, payload)

	return base64.RawURLEncoding.EncodeToString([]byte(payload + "|" + signature)), nil
}

func checkToken(cfg Config, scope, token string) error {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenInvalid
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 4 {
		return ErrTokenInvalid
	}

	payload := strings.Join(parts[:3], "|")
	expected := sign(cfg.SigningKey, payload)
	if subtle.ConstantTimeCompare([]byte(parts[3]), []byte(expected)) != 1 {
		return ErrTokenInvalid
	}

	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(scope)) != 1 {
		return ErrTokenInvalid
	}

	expiresAt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ErrTokenInvalid
	}

	if time.Now().UTC().After(time.Unix(expiresAt, 0)) {
		return ErrTokenExpired
	}

	return nil
}

func sign(key []byte, payload string) string {
	derived := sha256.Sum256(key)
	mac := hmac.New(sha256.New, derived[:])
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// callerScope binds tokens to the authenticated user when one is present,
// falling back to the client address for anonymous forms like login.
func callerScope(ctx router.Context) string {
	raw := ""

	if userID, ok := ctx.Locals("user_id").(string); ok && userID != "" {
		raw = "user|" + userID
	} else if sessionID, ok := ctx.Locals("session_id").(string); ok && sessionID != "" {
		raw = "session|" + sessionID
	} else {
		raw = "addr|" + ctx.IP()
	}

	digest := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:16])
}

func submittedToken(ctx router.Context, cfg Config) string {
	if token := ctx.FormValue(cfg.FieldName); token != "" {
		return token
	}
	return ctx.GetString(cfg.HeaderName, "")
}

func rejectRequest(ctx router.Context, err error) error {
	switch err {
	case ErrTokenMissing:
		return ctx.Status(router.StatusBadRequest).SendString("csrf token missing")
	case ErrTokenExpired:
		return ctx.Status(router.StatusForbidden).SendString("csrf token expired")
	case ErrNoSigningKey:
		return ctx.Status(router.StatusInternalServerError).SendString("csrf misconfigured")
	default:
		return ctx.Status(router.StatusForbidden).SendString("csrf token rejected")
	}
}

// FormHelpers exposes the minted token to view templates. The helper names
// match what the account views expect.
func FormHelpers(ctx router.Context, contextKey string) map[string]any {
	if contextKey == "" {
		contextKey = DefaultContextKey
	}

	token, _ := ctx.Locals(contextKey).(string)

	fieldName := DefaultFieldName
	if v, ok := ctx.Locals(contextKey + "_field").(string); ok && v != "" {
		fieldName = v
	}

	headerName := DefaultHeaderName
	if v, ok := ctx.Locals(contextKey + "_header").(string); ok && v != "" {
		headerName = v
	}

	return map[string]any{
		"csrf_token":       token,
		"csrf_field":       `<input type="hidden" name="` + fieldName + `" value="` + token + `">`,
		"csrf_meta":        `<meta name="csrf-token" content="` + token + `">`,
		"csrf_header_name": headerName,
	}
}
