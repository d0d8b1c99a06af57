package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"phone-auth/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLimited is returned when a phone number asked for too many codes.
var ErrLimited = errors.New("too many OTP requests")

// Limiter throttles OTP issuance per phone number: a cooldown between
// requests plus a max count per sliding window, backed by Redis.
type Limiter struct {
	client      *redis.Client
	cooldown    time.Duration
	window      time.Duration
	maxInWindow int
	log         *zap.Logger
}

func NewLimiter(config utils.RedisConfig, log *zap.Logger) *Limiter {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &Limiter{
		client:      client,
		cooldown:    config.Cooldown,
		window:      config.Window,
		maxInWindow: config.MaxInWindow,
		log:         log.With(zap.String("component", "otp_rate_limiter")),
	}
}

// Allow returns ErrLimited when the phone must wait. Redis outages fail
// open: issuance keeps working without throttling.
func (l *Limiter) Allow(ctx context.Context, phone string) error {
	lastKey := fmt.Sprintf("otp:last:%s", phone)
	countKey := fmt.Sprintf("otp:count:%s", phone)

	// Cooldown sejak request terakhir
	ok, err := l.client.SetNX(ctx, lastKey, "1", l.cooldown).Result()
	if err != nil {
		l.log.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
		return nil
	}
	if !ok {
		ttl, _ := l.client.TTL(ctx, lastKey).Result()
		return fmt.Errorf("%w: wait %d seconds before requesting another code", ErrLimited, int(ttl.Seconds()))
	}

	// Jumlah request dalam window
	count, err := l.client.Incr(ctx, countKey).Result()
	if err != nil {
		l.log.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
		return nil
	}
	if count == 1 {
		l.client.Expire(ctx, countKey, l.window)
	}
	if int(count) > l.maxInWindow {
		return fmt.Errorf("%w: try again later", ErrLimited)
	}

	return nil
}

// Close releases the Redis connection.
func (l *Limiter) Close() error {
	return l.client.Close()
}
