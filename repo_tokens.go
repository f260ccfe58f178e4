package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeTokenSQL is the single atomic check-and-consume step: the row is
// marked consumed only if it matches the user, purpose, and digest, has not
// been consumed, and has not expired. Concurrent validators of the same token
// therefore see exactly one success.
var ConsumeTokenSQL = `UPDATE "confirmation_tokens" AS "ctk"
SET
	"consumed_at" = ?
WHERE
	"ctk"."consumed_at" IS NULL
AND "ctk"."expires_at" > ?
AND (
	"ctk"."token_hash" = ?
	AND "ctk"."user_id" = ?
	AND "ctk"."purpose" = ?
) RETURNING *;`

// InvalidateOutstandingSQL consumes every live token for a (user, purpose)
// pair so a freshly issued token is the only valid one.
var InvalidateOutstandingSQL = `UPDATE "confirmation_tokens" AS "ctk"
SET
	"consumed_at" = ?
WHERE
	"ctk"."consumed_at" IS NULL
AND (
	"ctk"."user_id" = ?
	AND "ctk"."purpose" = ?
) RETURNING *;`

type ConfirmationTokens interface {
	repository.Repository[*ConfirmationToken]

	Consume(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, tokenHash string, now time.Time) (*ConfirmationToken, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, tokenHash string, now time.Time) (*ConfirmationToken, error)
	InvalidateOutstanding(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, now time.Time) (int, error)
	InvalidateOutstandingTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, now time.Time) (int, error)
	Create(ctx context.Context, record *ConfirmationToken, criteria ...repository.InsertCriteria) (*ConfirmationToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *ConfirmationToken, criteria ...repository.InsertCriteria) (*ConfirmationToken, error)
}

type confirmationTokens struct {
	repository.Repository[*ConfirmationToken]
	db *bun.DB
}

var (
	_ ConfirmationTokens                        = (*confirmationTokens)(nil)
	_ repository.Repository[*ConfirmationToken] = (*confirmationTokens)(nil)
)

func NewConfirmationTokensRepository(db *bun.DB) ConfirmationTokens {
	repo := repository.NewRepository[*ConfirmationToken](db, repository.ModelHandlers[*ConfirmationToken]{
		NewRecord: func() *ConfirmationToken { return &ConfirmationToken{} },
		GetID: func(t *ConfirmationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *ConfirmationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	return &confirmationTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *confirmationTokens) Create(ctx context.Context, record *ConfirmationToken, criteria ...repository.InsertCriteria) (*ConfirmationToken, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *confirmationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *ConfirmationToken, criteria ...repository.InsertCriteria) (*ConfirmationToken, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *confirmationTokens) Consume(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, tokenHash string, now time.Time) (*ConfirmationToken, error) {
	return r.ConsumeTx(ctx, r.db, userID, purpose, tokenHash, now)
}

func (r *confirmationTokens) ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, tokenHash string, now time.Time) (*ConfirmationToken, error) {
	res, err := r.Repository.RawTx(ctx, tx, ConsumeTokenSQL, now, now, tokenHash, userID.String(), purpose)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, ErrInvalidOrExpiredToken.WithMetadata(map[string]any{
			"user_id": userID.String(),
			"purpose": purpose,
		})
	}

	return res[0], nil
}

func (r *confirmationTokens) InvalidateOutstanding(ctx context.Context, userID uuid.UUID, purpose TokenPurpose, now time.Time) (int, error) {
	return r.InvalidateOutstandingTx(ctx, r.db, userID, purpose, now)
}

func (r *confirmationTokens) InvalidateOutstandingTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, purpose TokenPurpose, now time.Time) (int, error) {
	res, err := r.Repository.RawTx(ctx, tx, InvalidateOutstandingSQL, now, userID.String(), purpose)
	if err != nil {
		return 0, err
	}

	return len(res), nil
}
