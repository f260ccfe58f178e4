package accounts

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
)

// GateOutcome says what the gate decided for a request.
type GateOutcome int

const (
	// GateAllow lets the request through.
	GateAllow GateOutcome = iota
	// GateRedirect sends the requester elsewhere, optionally terminating the
	// session cookie first.
	GateRedirect
)

// GateDecision is the result of one gate evaluation. TerminateSession tells
// the transport layer to clear the session cookie before redirecting, so a
// revoked account cannot keep replaying a signed token.
type GateDecision struct {
	Outcome          GateOutcome
	Target           string
	Reason           string
	TerminateSession bool
}

func allowDecision() GateDecision {
	return GateDecision{Outcome: GateAllow}
}

// StatusGate enforces the persisted account status on every request. It
// never trusts the status claim embedded in the session token: the record is
// re-read each time, so an admin block takes effect on the user's next
// request no matter how fresh their token is.
type StatusGate struct {
	users           Users
	logger          Logger
	loginPath       string
	verifyPath      string
	allowedPrefixes []string
	privileged      []string
}

// GateOption configures a StatusGate.
type GateOption func(*StatusGate)

// WithGateLoginPath sets the redirect target for revoked or deleted accounts.
func WithGateLoginPath(path string) GateOption {
	return func(g *StatusGate) {
		if path != "" {
			g.loginPath = path
		}
	}
}

// WithGateVerifyPath sets the redirect target for unverified accounts hitting
// privileged routes.
func WithGateVerifyPath(path string) GateOption {
	return func(g *StatusGate) {
		if path != "" {
			g.verifyPath = path
		}
	}
}

// WithGateAllowedPrefixes replaces the unauthenticated allow list.
func WithGateAllowedPrefixes(prefixes ...string) GateOption {
	return func(g *StatusGate) {
		g.allowedPrefixes = prefixes
	}
}

// WithGatePrivilegedPrefixes replaces the prefixes that require a confirmed
// (active) account.
func WithGatePrivilegedPrefixes(prefixes ...string) GateOption {
	return func(g *StatusGate) {
		g.privileged = prefixes
	}
}

// WithGateLogger overrides the gate logger.
func WithGateLogger(logger Logger) GateOption {
	return func(g *StatusGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewStatusGate builds a gate over the users repository.
func NewStatusGate(users Users, opts ...GateOption) *StatusGate {
	g := &StatusGate{
		users:      users,
		logger:     defLogger{},
		loginPath:  "/login",
		verifyPath: "/account/verify",
		allowedPrefixes: []string{
			"/login",
			"/register",
			"/account/verify",
			"/account/confirm",
			"/static",
			"/favicon.ico",
		},
		privileged: []string{"/admin"},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Evaluate is the pure policy decision: given the request path and the
// session (nil when the request carries none), return what should happen.
// The user record is read fresh on every call.
func (g *StatusGate) Evaluate(ctx context.Context, path string, session Session) (GateDecision, error) {
	if g.isAllowed(path) {
		return allowDecision(), nil
	}

	// Anonymous requests pass through: requiring authentication is the
	// ProtectedRoute middleware's job. The gate only polices accounts it
	// can identify.
	if session == nil {
		return allowDecision(), nil
	}

	user, err := g.users.GetByIdentifier(ctx, session.GetUserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// the account was deleted after the session was issued
			return GateDecision{
				Outcome:          GateRedirect,
				Target:           g.loginPath,
				Reason:           "account not found",
				TerminateSession: true,
			}, nil
		}
		return GateDecision{}, goerrors.Wrap(err, goerrors.CategoryInternal, "gate failed to load user")
	}

	user.EnsureStatus()

	if user.IsBlocked() {
		return GateDecision{
			Outcome:          GateRedirect,
			Target:           g.loginPath,
			Reason:           "account blocked",
			TerminateSession: true,
		}, nil
	}

	if user.IsUnverified() && g.isPrivileged(path) {
		return GateDecision{
			Outcome: GateRedirect,
			Target:  g.verifyPath + "?reason=unverified",
			Reason:  "account unverified",
		}, nil
	}

	return allowDecision(), nil
}

// Middleware wires the gate into the request pipeline. The session is
// resolved by the provided lookup (usually Auther.SessionFromToken over the
// session cookie); lookup failures are treated as "no session".
func (g *StatusGate) Middleware(lookup func(router.Context) (Session, error), terminate func(router.Context)) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			var session Session
			if lookup != nil {
				if s, err := lookup(ctx); err == nil {
					session = s
				}
			}

			decision, err := g.Evaluate(ctx.Context(), ctx.Path(), session)
			if err != nil {
				g.logger.Error("gate evaluation error: %s", err)
				return ctx.Status(http.StatusInternalServerError).SendString("internal error")
			}

			if decision.Outcome == GateAllow {
				return next(ctx)
			}

			if decision.TerminateSession && terminate != nil {
				terminate(ctx)
			}

			g.logger.Info("gate redirect: path=%s reason=%s", ctx.Path(), decision.Reason)

			statusCode := http.StatusSeeOther
			if ctx.Method() == string(router.GET) {
				statusCode = http.StatusFound
			}
			return ctx.Redirect(decision.Target, statusCode)
		}
	}
}

func (g *StatusGate) isAllowed(path string) bool {
	return hasPrefix(path, g.allowedPrefixes)
}

func (g *StatusGate) isPrivileged(path string) bool {
	return hasPrefix(path, g.privileged)
}

func hasPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return true
		}
	}
	return false
}
