package repository

import (
	"context"
	"fmt"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/pkg/database"
	"phone-auth/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type AuthTokenRepository interface {
	// GetOrCreate returns the user's token, creating it on first call.
	// Idempotent: concurrent callers for the same user get the same row.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*entity.AuthToken, error)
	FindByToken(ctx context.Context, token uuid.UUID) (*entity.AuthToken, error)
	WithTx(q database.Querier) AuthTokenRepository
}

type authTokenRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewAuthTokenRepository(db database.Querier, log *zap.Logger) AuthTokenRepository {
	return &authTokenRepository{
		db:  db,
		log: log.With(zap.String("repository", "auth_token")),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *authTokenRepository) WithTx(q database.Querier) AuthTokenRepository {
	return &authTokenRepository{db: q, log: r.log}
}

func (r *authTokenRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*entity.AuthToken, error) {
	// ON CONFLICT DO NOTHING + re-select, bukan upsert: token yang sudah
	// ada tidak boleh pernah diganti.
	insert := `
		INSERT INTO auth_tokens (id, user_id, token, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.db.Exec(ctx, insert, utils.GenerateUUID(), userID, utils.GenerateAuthToken(), time.Now())
	if err != nil {
		r.log.Error("Failed to insert auth token",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("insert auth token for %s: %w", userID.String(), err)
	}

	query := `
		SELECT id, user_id, token, created_at
		FROM auth_tokens
		WHERE user_id = $1
	`

	var token entity.AuthToken
	err = r.db.QueryRow(ctx, query, userID).Scan(
		&token.ID,
		&token.UserID,
		&token.Token,
		&token.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to load auth token",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("load auth token for %s: %w", userID.String(), err)
	}

	return &token, nil
}

func (r *authTokenRepository) FindByToken(ctx context.Context, tokenValue uuid.UUID) (*entity.AuthToken, error) {
	query := `
		SELECT id, user_id, token, created_at
		FROM auth_tokens
		WHERE token = $1
	`

	var token entity.AuthToken
	err := r.db.QueryRow(ctx, query, tokenValue).Scan(
		&token.ID,
		&token.UserID,
		&token.Token,
		&token.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find auth token", zap.Error(err))
		return nil, fmt.Errorf("find auth token: %w", err)
	}

	return &token, nil
}
