package repository

import (
	"context"
	"fmt"

	"phone-auth/internal/data/entity"
	"phone-auth/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type OTPRepository interface {
	Create(ctx context.Context, otp *entity.OTPCode) error
	// FindLatestUnbound returns the most recently created code for the
	// phone/code/purpose that has not been bound to a user yet, or nil.
	// Expiry is NOT filtered here so the caller can tell "expired" apart
	// from "not found".
	FindLatestUnbound(ctx context.Context, phone, code string, purpose entity.OTPPurpose) (*entity.OTPCode, error)
	// Consume atomically flips the consumed flag and binds the code to the
	// user. Returns false when the code was already consumed by a
	// concurrent verification.
	Consume(ctx context.Context, otpID, userID uuid.UUID) (bool, error)
	FindAll(ctx context.Context, limit, offset int) ([]*entity.OTPCode, error)
	CountAll(ctx context.Context) (int64, error)
	WithTx(q database.Querier) OTPRepository
}

type otpRepository struct {
	db  database.Querier
	log *zap.Logger
}

func NewOTPRepository(db database.Querier, log *zap.Logger) OTPRepository {
	return &otpRepository{
		db:  db,
		log: log.With(zap.String("repository", "otp")),
	}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *otpRepository) WithTx(q database.Querier) OTPRepository {
	return &otpRepository{db: q, log: r.log}
}

func (r *otpRepository) Create(ctx context.Context, otp *entity.OTPCode) error {
	query := `
		INSERT INTO otp_codes (id, user_id, phone, code, purpose,
		                       consumed, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		otp.ID,
		otp.UserID,
		otp.Phone,
		otp.Code,
		otp.Purpose,
		otp.Consumed,
		otp.ExpiresAt,
		otp.CreatedAt,
	)

	if err != nil {
		r.log.Error("Failed to create OTP",
			zap.Error(err),
			zap.String("phone", otp.Phone),
			zap.String("purpose", string(otp.Purpose)),
		)
		return fmt.Errorf("create OTP for %s: %w", otp.Phone, err)
	}

	return nil
}

func (r *otpRepository) FindLatestUnbound(ctx context.Context, phone, code string, purpose entity.OTPPurpose) (*entity.OTPCode, error) {
	query := `
		SELECT id, user_id, phone, code, purpose,
		       consumed, expires_at, created_at
		FROM otp_codes
		WHERE user_id IS NULL
		  AND phone = $1
		  AND code = $2
		  AND purpose = $3
		  AND consumed = false
		ORDER BY created_at DESC
		LIMIT 1
	`

	var otp entity.OTPCode
	err := r.db.QueryRow(ctx, query, phone, code, purpose).Scan(
		&otp.ID,
		&otp.UserID,
		&otp.Phone,
		&otp.Code,
		&otp.Purpose,
		&otp.Consumed,
		&otp.ExpiresAt,
		&otp.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find OTP",
			zap.Error(err),
			zap.String("phone", phone),
			zap.String("purpose", string(purpose)),
		)
		return nil, fmt.Errorf("find OTP for %s purpose %s: %w", phone, purpose, err)
	}

	return &otp, nil
}

func (r *otpRepository) Consume(ctx context.Context, otpID, userID uuid.UUID) (bool, error) {
	// Compare-and-swap pada flag consumed: hanya satu verifier yang menang.
	query := `
		UPDATE otp_codes
		SET consumed = true, user_id = $2
		WHERE id = $1 AND consumed = false
	`

	result, err := r.db.Exec(ctx, query, otpID, userID)
	if err != nil {
		r.log.Error("Failed to consume OTP",
			zap.Error(err),
			zap.String("otp_id", otpID.String()),
		)
		return false, fmt.Errorf("consume OTP %s: %w", otpID.String(), err)
	}

	return result.RowsAffected() > 0, nil
}

// FindAll retrieves paginated list of issued codes, newest first.
func (r *otpRepository) FindAll(ctx context.Context, limit, offset int) ([]*entity.OTPCode, error) {
	query := `
		SELECT id, user_id, phone, code, purpose,
		       consumed, expires_at, created_at
		FROM otp_codes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.Error("Failed to get all OTP codes",
			zap.Error(err),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, fmt.Errorf("find all OTP codes limit %d offset %d: %w", limit, offset, err)
	}
	defer rows.Close()

	var otps []*entity.OTPCode
	for rows.Next() {
		var otp entity.OTPCode
		err := rows.Scan(
			&otp.ID,
			&otp.UserID,
			&otp.Phone,
			&otp.Code,
			&otp.Purpose,
			&otp.Consumed,
			&otp.ExpiresAt,
			&otp.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan OTP row", zap.Error(err))
			return nil, fmt.Errorf("scan OTP row: %w", err)
		}
		otps = append(otps, &otp)
	}

	if err := rows.Err(); err != nil {
		r.log.Error("Rows iteration error", zap.Error(err))
		return nil, fmt.Errorf("iterate OTP rows: %w", err)
	}

	return otps, nil
}

func (r *otpRepository) CountAll(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM otp_codes`

	var count int64
	err := r.db.QueryRow(ctx, query).Scan(&count)
	if err != nil {
		r.log.Error("Database error counting OTP codes", zap.Error(err))
		return 0, fmt.Errorf("count all OTP codes: %w", err)
	}

	return count, nil
}
