package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the trust state of an account. It is a closed set; the
// only legal edges are unverified->active, active->blocked, blocked->active,
// and deletion from any state. A defined type keeps raw strings from leaking
// into status positions without an explicit conversion.
type AccountStatus string

const (
	// AccountStatusUnverified is the state every registration starts in.
	AccountStatusUnverified AccountStatus = "unverified"
	// AccountStatusActive is reached only through email confirmation or an
	// admin unblock.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusBlocked denies authentication and terminates sessions at
	// the gate.
	AccountStatusBlocked AccountStatus = "blocked"
)

// ParseAccountStatus safely parses a string into an AccountStatus
func ParseAccountStatus(s string) (AccountStatus, bool) {
	switch AccountStatus(s) {
	case AccountStatusUnverified, AccountStatusActive, AccountStatusBlocked:
		return AccountStatus(s), true
	default:
		return "", false
	}
}

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string        `bun:"username,notnull" json:"username,omitempty"`
	Email          string        `bun:"email,notnull" json:"email,omitempty"`
	PasswordHash   string        `bun:"password_hash" json:"-"`
	Status         AccountStatus `bun:"status,notnull" json:"status,omitempty"`
	LoginAttempts  int           `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time    `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time    `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus normalizes rows that predate the status column. Legacy rows
// are treated as active; new records are created unverified by the
// repository defaults.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = AccountStatusActive
	}
}

// IsUnverified reports whether the account still awaits email confirmation.
func (u *User) IsUnverified() bool {
	return u.Status == AccountStatusUnverified
}

// IsActive reports whether the account is in good standing.
func (u *User) IsActive() bool {
	u.EnsureStatus()
	return u.Status == AccountStatusActive
}

// IsBlocked reports whether an admin blocked the account.
func (u *User) IsBlocked() bool {
	return u.Status == AccountStatusBlocked
}

// statusAuthError maps a persisted status to the authentication outcome.
// Unverified accounts may authenticate; verification gates privileged areas,
// not login itself.
func statusAuthError(status AccountStatus) error {
	if status == AccountStatusBlocked {
		return ErrAccountBlocked
	}
	return nil
}

// TokenPurpose scopes a confirmation token to the flow that issued it.
type TokenPurpose = string

const (
	// PurposeEmailConfirmation proves control of a registered email address.
	PurposeEmailConfirmation TokenPurpose = "email_confirmation"
)

// ConfirmationToken is a single-use, expiring credential bound to one user
// and purpose. Only the sha256 digest of the opaque value is stored.
type ConfirmationToken struct {
	bun.BaseModel `bun:"table:confirmation_tokens,alias:ctk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	TokenHash     string       `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Consumed reports whether the token has already been used.
func (t *ConfirmationToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// Expired reports whether the token lifetime elapsed at the given instant.
func (t *ConfirmationToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}
