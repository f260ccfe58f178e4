package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultTokenTTL   = 24 * time.Hour
	defaultTokenBytes = 48
)

// TokenOption customizes the ConfirmationTokenService.
type TokenOption func(*ConfirmationTokenService)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(d time.Duration) TokenOption {
	return func(s *ConfirmationTokenService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithTokenLength adjusts the number of random bytes in generated tokens.
func WithTokenLength(size int) TokenOption {
	return func(s *ConfirmationTokenService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithTokenClock injects a custom time source.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(s *ConfirmationTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenLogger overrides the service logger.
func WithTokenLogger(logger Logger) TokenOption {
	return func(s *ConfirmationTokenService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ConfirmationTokenService issues and validates single-use, expiring tokens
// bound to a user id and purpose. Raw token values are returned to the caller
// exactly once; only their sha256 digest is persisted.
type ConfirmationTokenService struct {
	repo        RepositoryManager
	ttl         time.Duration
	tokenLength int
	now         func() time.Time
	logger      Logger
}

// NewConfirmationTokenService builds the service on top of the repository manager.
func NewConfirmationTokenService(repo RepositoryManager, opts ...TokenOption) *ConfirmationTokenService {
	s := &ConfirmationTokenService{
		repo:        repo,
		ttl:         defaultTokenTTL,
		tokenLength: defaultTokenBytes,
		now:         time.Now,
		logger:      defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Issue generates a token for the user and purpose. Outstanding tokens of
// the same purpose are invalidated in the same transaction so there is never
// ambiguity about which token is the valid one.
func (s *ConfirmationTokenService) Issue(ctx context.Context, userID uuid.UUID, purpose TokenPurpose) (string, error) {
	return s.IssueTx(ctx, nil, userID, purpose)
}

// IssueTx is like Issue but runs inside the given transaction when tx is not
// nil, so callers can make token issuance atomic with user creation.
func (s *ConfirmationTokenService) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose) (string, error) {
	raw, err := generateToken(s.tokenLength)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate confirmation token")
	}

	now := s.now()
	record := &ConfirmationToken{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: HashToken(raw),
		ExpiresAt: now.Add(s.ttl),
	}

	issue := func(ctx context.Context, tx bun.IDB) error {
		if _, err := s.repo.ConfirmationTokens().InvalidateOutstandingTx(ctx, tx, userID, purpose, now); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to invalidate outstanding tokens")
		}

		if _, err := s.repo.ConfirmationTokens().CreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist confirmation token")
		}

		return nil
	}

	if tx != nil {
		if err := issue(ctx, tx); err != nil {
			return "", err
		}
		return raw, nil
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return issue(ctx, tx)
	})
	if err != nil {
		return "", err
	}

	return raw, nil
}

// Validate checks that the token exists, belongs to the user, is unexpired,
// and is unconsumed; on success it is atomically marked consumed. Every
// rejection is ErrInvalidOrExpiredToken, regardless of which condition
// failed.
func (s *ConfirmationTokenService) Validate(ctx context.Context, userID uuid.UUID, rawToken string) error {
	return s.ValidateTx(ctx, nil, userID, rawToken)
}

// ValidateTx is like Validate but joins the given transaction when tx is not nil.
func (s *ConfirmationTokenService) ValidateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, rawToken string) error {
	if rawToken == "" {
		return ErrInvalidOrExpiredToken
	}

	var err error
	if tx != nil {
		_, err = s.repo.ConfirmationTokens().ConsumeTx(ctx, tx, userID, PurposeEmailConfirmation, HashToken(rawToken), s.now())
	} else {
		_, err = s.repo.ConfirmationTokens().Consume(ctx, userID, PurposeEmailConfirmation, HashToken(rawToken), s.now())
	}

	if err != nil {
		s.logger.Debug("confirmation token rejected for user %s: %s", userID.String(), err)
		return err
	}

	return nil
}

// HashToken returns the hex encoded sha256 digest stored in place of the raw
// token value.
func HashToken(raw string) string {
	digest := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(digest[:])
}

func generateToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
