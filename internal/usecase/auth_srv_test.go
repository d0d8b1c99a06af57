package usecase

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"phone-auth/internal/data/entity"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/dto/request"
	"phone-auth/internal/rate"
	"phone-auth/pkg/database"
	"phone-auth/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ==================== FAKES ====================

type fakeTxRunner struct{}

func (f *fakeTxRunner) WithinTx(ctx context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entity.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*entity.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Phone == user.Phone {
			return &pgconn.PgError{Code: "23505", ConstraintName: "users_phone_key"}
		}
		if u.Username == user.Username {
			return &pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"}
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUserRepo) FindByPhone(ctx context.Context, phone string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) FindAll(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.User
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeUserRepo) CountAll(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.users)), nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *entity.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) WithTx(q database.Querier) repository.UserRepository { return f }

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type fakeOTPRepo struct {
	mu      sync.Mutex
	otps    []*entity.OTPCode
	lookups int
}

func newFakeOTPRepo() *fakeOTPRepo { return &fakeOTPRepo{} }

func (f *fakeOTPRepo) Create(ctx context.Context, otp *entity.OTPCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *otp
	f.otps = append(f.otps, &cp)
	return nil
}

func (f *fakeOTPRepo) FindLatestUnbound(ctx context.Context, phone, code string, purpose entity.OTPPurpose) (*entity.OTPCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	var latest *entity.OTPCode
	for _, o := range f.otps {
		if o.UserID != nil || o.Consumed || o.Phone != phone || o.Code != code || o.Purpose != purpose {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeOTPRepo) Consume(ctx context.Context, otpID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.otps {
		if o.ID != otpID {
			continue
		}
		if o.Consumed {
			return false, nil
		}
		o.Consumed = true
		uid := userID
		o.UserID = &uid
		return true, nil
	}
	return false, nil
}

func (f *fakeOTPRepo) FindAll(ctx context.Context, limit, offset int) ([]*entity.OTPCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.OTPCode
	for _, o := range f.otps {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeOTPRepo) CountAll(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.otps)), nil
}

func (f *fakeOTPRepo) WithTx(q database.Querier) repository.OTPRepository { return f }

func (f *fakeOTPRepo) latestFor(phone string) *entity.OTPCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *entity.OTPCode
	for _, o := range f.otps {
		if o.Phone != phone {
			continue
		}
		if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil
	}
	cp := *latest
	return &cp
}

func (f *fakeOTPRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.otps)
}

type fakeTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*entity.AuthToken // keyed by user ID
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[uuid.UUID]*entity.AuthToken)}
}

func (f *fakeTokenRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*entity.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tokens[userID]; ok {
		cp := *t
		return &cp, nil
	}
	t := &entity.AuthToken{
		BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: time.Now()},
		UserID:     userID,
		Token:      uuid.New(),
	}
	f.tokens[userID] = t
	cp := *t
	return &cp, nil
}

func (f *fakeTokenRepo) FindByToken(ctx context.Context, tokenValue uuid.UUID) (*entity.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.Token == tokenValue {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeTokenRepo) WithTx(q database.Querier) repository.AuthTokenRepository { return f }

func (f *fakeTokenRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (f *fakeGateway) Send(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("gateway unreachable")
	}
	f.sent = append(f.sent, body)
	return "SM0001", nil
}

func (f *fakeGateway) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLimiter struct {
	limited bool
}

func (f *fakeLimiter) Allow(ctx context.Context, phone string) error {
	if f.limited {
		return rate.ErrLimited
	}
	return nil
}

// ==================== HELPERS ====================

type testEnv struct {
	service AuthService
	users   *fakeUserRepo
	otps    *fakeOTPRepo
	tokens  *fakeTokenRepo
	gateway *fakeGateway
}

func newTestEnv(limiter RateLimiter) *testEnv {
	users := newFakeUserRepo()
	otps := newFakeOTPRepo()
	tokens := newFakeTokenRepo()
	gateway := &fakeGateway{}

	repo := &repository.Repository{
		User:  users,
		OTP:   otps,
		Token: tokens,
	}
	config := &utils.Config{
		OTP: utils.OTPConfig{Length: 6, ExpiryMinutes: 5},
	}

	return &testEnv{
		service: NewAuthService(&fakeTxRunner{}, repo, gateway, limiter, config, zap.NewNop()),
		users:   users,
		otps:    otps,
		tokens:  tokens,
		gateway: gateway,
	}
}

const testPhone = "+15551234567"

func (e *testEnv) issue(t *testing.T, phone string) string {
	t.Helper()
	if err := e.service.RequestOTP(context.Background(), &request.RequestOTPRequest{PhoneNumber: phone}); err != nil {
		t.Fatalf("RequestOTP(%s): %v", phone, err)
	}
	otp := e.otps.latestFor(phone)
	if otp == nil {
		t.Fatalf("no OTP stored for %s", phone)
	}
	return otp.Code
}

// ==================== REQUEST OTP ====================

func TestRequestOTPRejectsPhoneWithoutCountryCode(t *testing.T) {
	env := newTestEnv(nil)

	err := env.service.RequestOTP(context.Background(), &request.RequestOTPRequest{PhoneNumber: "15551234567"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if env.otps.count() != 0 {
		t.Errorf("expected no OTP rows, got %d", env.otps.count())
	}
	if env.gateway.count() != 0 {
		t.Errorf("expected no SMS dispatch, got %d", env.gateway.count())
	}
}

func TestRequestOTPIssuesSixDigitCode(t *testing.T) {
	env := newTestEnv(nil)

	if err := env.service.RequestOTP(context.Background(), &request.RequestOTPRequest{PhoneNumber: testPhone}); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}

	if env.otps.count() != 1 {
		t.Fatalf("expected exactly one OTP row, got %d", env.otps.count())
	}

	otp := env.otps.latestFor(testPhone)
	if otp.Consumed {
		t.Error("new OTP must not be consumed")
	}
	if otp.UserID != nil {
		t.Error("new OTP must not be bound to a user")
	}
	if otp.Purpose != entity.PurposeSignup {
		t.Errorf("purpose = %s, want signup", otp.Purpose)
	}
	if !regexp.MustCompile(`^[0-9]{6}$`).MatchString(otp.Code) {
		t.Errorf("code %q does not match ^[0-9]{6}$", otp.Code)
	}
	if got, want := otp.ExpiresAt.Sub(otp.CreatedAt), 5*time.Minute; got != want {
		t.Errorf("expiry window = %v, want %v", got, want)
	}

	if env.gateway.count() != 1 {
		t.Fatalf("expected one SMS, got %d", env.gateway.count())
	}
	env.gateway.mu.Lock()
	body := env.gateway.sent[0]
	env.gateway.mu.Unlock()
	if want := "Your OTP is: " + otp.Code; body != want {
		t.Errorf("SMS body = %q, want %q", body, want)
	}
}

func TestRequestOTPKeepsRecordWhenDeliveryFails(t *testing.T) {
	env := newTestEnv(nil)
	env.gateway.fail = true

	err := env.service.RequestOTP(context.Background(), &request.RequestOTPRequest{PhoneNumber: testPhone})
	if !errors.Is(err, ErrSMSDelivery) {
		t.Fatalf("expected delivery error, got %v", err)
	}

	// Baris OTP sengaja tidak di-rollback
	if env.otps.count() != 1 {
		t.Errorf("expected OTP row to remain, got %d rows", env.otps.count())
	}
}

func TestRequestOTPRateLimited(t *testing.T) {
	env := newTestEnv(&fakeLimiter{limited: true})

	err := env.service.RequestOTP(context.Background(), &request.RequestOTPRequest{PhoneNumber: testPhone})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if env.otps.count() != 0 {
		t.Errorf("expected no OTP rows, got %d", env.otps.count())
	}
}

// ==================== VERIFY OTP ====================

func TestVerifyOTPRoundTrip(t *testing.T) {
	env := newTestEnv(nil)
	code := env.issue(t, testPhone)

	resp, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         code,
	})
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}

	if env.users.count() != 1 {
		t.Errorf("expected one user, got %d", env.users.count())
	}
	user, _ := env.users.FindByPhone(context.Background(), testPhone)
	if user == nil {
		t.Fatal("user not created")
	}
	if user.Username != testPhone {
		t.Errorf("username = %q, want phone", user.Username)
	}
	if user.PasswordHash != nil {
		t.Error("OTP-only account must have no password credential")
	}
	if !user.IsActive {
		t.Error("new user must be active")
	}

	// Reuse of the same code must fail and must not mint anything new
	_, err = env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         code,
	})
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected invalid OTP on reuse, got %v", err)
	}
	if env.users.count() != 1 {
		t.Errorf("reuse created extra user: %d", env.users.count())
	}
	if env.tokens.count() != 1 {
		t.Errorf("reuse created extra token: %d", env.tokens.count())
	}
}

func TestVerifyOTPReturnsSameTokenForExistingUser(t *testing.T) {
	env := newTestEnv(nil)

	code := env.issue(t, testPhone)
	first, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{PhoneNumber: testPhone, OTP: code})
	if err != nil {
		t.Fatalf("first VerifyOTP: %v", err)
	}

	code = env.issue(t, testPhone)
	second, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{PhoneNumber: testPhone, OTP: code})
	if err != nil {
		t.Fatalf("second VerifyOTP: %v", err)
	}

	if first.Token != second.Token {
		t.Error("token must be get-or-create, not re-minted per verification")
	}
	if env.users.count() != 1 {
		t.Errorf("expected one user after two verifications, got %d", env.users.count())
	}
}

func TestVerifyOTPUnknownCode(t *testing.T) {
	env := newTestEnv(nil)
	env.issue(t, testPhone)

	_, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         "000000",
	})
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected invalid OTP, got %v", err)
	}
}

func TestVerifyOTPRejectsOtherPhonesCode(t *testing.T) {
	env := newTestEnv(nil)
	code := env.issue(t, testPhone)

	// Kode milik nomor lain tidak boleh bisa dipakai
	_, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: "+15550000000",
		OTP:         code,
	})
	if !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("expected invalid OTP for wrong phone, got %v", err)
	}
	if env.users.count() != 0 {
		t.Errorf("no user should be created, got %d", env.users.count())
	}
}

func TestVerifyOTPExpiryBoundary(t *testing.T) {
	env := newTestEnv(nil)
	now := time.Now()

	stillValid := &entity.OTPCode{
		BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now.Add(-5 * time.Minute)},
		Phone:      testPhone,
		Code:       "111111",
		Purpose:    entity.PurposeSignup,
		ExpiresAt:  now.Add(1 * time.Second),
	}
	expired := &entity.OTPCode{
		BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now.Add(-10 * time.Minute)},
		Phone:      testPhone,
		Code:       "222222",
		Purpose:    entity.PurposeSignup,
		ExpiresAt:  now.Add(-1 * time.Second),
	}
	env.otps.Create(context.Background(), stillValid)
	env.otps.Create(context.Background(), expired)

	if _, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         "111111",
	}); err != nil {
		t.Errorf("code just inside expiry window should verify, got %v", err)
	}

	_, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         "222222",
	})
	if !errors.Is(err, ErrOTPExpired) {
		t.Errorf("expected expired error, got %v", err)
	}
}

func TestVerifyOTPMostRecentCodeWins(t *testing.T) {
	env := newTestEnv(nil)
	now := time.Now()

	// Kode sama diterbitkan dua kali; baris terbaru yang harus dipakai
	older := &entity.OTPCode{
		BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now.Add(-10 * time.Minute)},
		Phone:      testPhone,
		Code:       "333333",
		Purpose:    entity.PurposeSignup,
		ExpiresAt:  now.Add(-5 * time.Minute),
	}
	newer := &entity.OTPCode{
		BaseSimple: entity.BaseSimple{ID: uuid.New(), CreatedAt: now},
		Phone:      testPhone,
		Code:       "333333",
		Purpose:    entity.PurposeSignup,
		ExpiresAt:  now.Add(5 * time.Minute),
	}
	env.otps.Create(context.Background(), older)
	env.otps.Create(context.Background(), newer)

	if _, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         "333333",
	}); err != nil {
		t.Fatalf("most recent row should win, got %v", err)
	}
}

func TestVerifyOTPMissingFieldsNeverTouchStore(t *testing.T) {
	env := newTestEnv(nil)

	_, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         "",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: "",
		OTP:         "123456",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	env.otps.mu.Lock()
	lookups := env.otps.lookups
	env.otps.mu.Unlock()
	if lookups != 0 {
		t.Errorf("validation failures must not hit the store, got %d lookups", lookups)
	}
}

func TestVerifyOTPUsernameCollisionFallback(t *testing.T) {
	env := newTestEnv(nil)

	// Akun lain sudah memakai username yang sama dengan nomor pendaftar
	taken := &entity.User{
		Base:     entity.Base{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Username: testPhone,
		Phone:    "+19998887777",
		Role:     entity.RoleCustomer,
		IsActive: true,
	}
	if err := env.users.Create(context.Background(), taken); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	code := env.issue(t, testPhone)
	if _, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         code,
	}); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	user, _ := env.users.FindByPhone(context.Background(), testPhone)
	if user == nil {
		t.Fatal("user not created")
	}
	if user.Username == testPhone {
		t.Error("username collision should have been disambiguated")
	}
	if !regexp.MustCompile(`^user_[0-9a-f]{8}$`).MatchString(user.Username) {
		t.Errorf("fallback username %q not in user_<hex> form", user.Username)
	}
}

// txState replays Postgres transaction-abort semantics: once a statement
// fails, every later statement in the same transaction returns 25P02.
type txState struct {
	mu      sync.Mutex
	aborted bool
}

func (s *txState) reset() {
	s.mu.Lock()
	s.aborted = false
	s.mu.Unlock()
}

func (s *txState) gate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return &pgconn.PgError{
			Code:    "25P02",
			Message: "current transaction is aborted, commands ignored until end of transaction block",
		}
	}
	return nil
}

func (s *txState) observe(err error) error {
	if err != nil {
		s.mu.Lock()
		s.aborted = true
		s.mu.Unlock()
	}
	return err
}

type abortingTxRunner struct {
	state *txState
}

func (r *abortingTxRunner) WithinTx(ctx context.Context, fn func(q database.Querier) error) error {
	r.state.reset()
	return fn(nil)
}

// racingUserRepo loses the username to a competitor between the
// availability check and the insert, exactly once.
type racingUserRepo struct {
	*fakeUserRepo
	state     *txState
	raceMu    sync.Mutex
	racedName string
	raced     bool
}

func (r *racingUserRepo) WithTx(q database.Querier) repository.UserRepository { return r }

func (r *racingUserRepo) FindByPhone(ctx context.Context, phone string) (*entity.User, error) {
	if err := r.state.gate(); err != nil {
		return nil, err
	}
	return r.fakeUserRepo.FindByPhone(ctx, phone)
}

func (r *racingUserRepo) FindByUsername(ctx context.Context, username string) (*entity.User, error) {
	if err := r.state.gate(); err != nil {
		return nil, err
	}
	return r.fakeUserRepo.FindByUsername(ctx, username)
}

func (r *racingUserRepo) Create(ctx context.Context, user *entity.User) error {
	if err := r.state.gate(); err != nil {
		return err
	}
	r.raceMu.Lock()
	if !r.raced && user.Username == r.racedName {
		r.raced = true
		r.raceMu.Unlock()
		competitor := &entity.User{
			Base:     entity.Base{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
			Username: r.racedName,
			Phone:    "+19998880000",
			Role:     entity.RoleCustomer,
			IsActive: true,
		}
		if err := r.fakeUserRepo.Create(ctx, competitor); err != nil {
			return r.state.observe(err)
		}
		return r.state.observe(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})
	}
	r.raceMu.Unlock()
	return r.state.observe(r.fakeUserRepo.Create(ctx, user))
}

type gatedOTPRepo struct {
	*fakeOTPRepo
	state *txState
}

func (r *gatedOTPRepo) WithTx(q database.Querier) repository.OTPRepository { return r }

func (r *gatedOTPRepo) Consume(ctx context.Context, otpID, userID uuid.UUID) (bool, error) {
	if err := r.state.gate(); err != nil {
		return false, err
	}
	return r.fakeOTPRepo.Consume(ctx, otpID, userID)
}

type gatedTokenRepo struct {
	*fakeTokenRepo
	state *txState
}

func (r *gatedTokenRepo) WithTx(q database.Querier) repository.AuthTokenRepository { return r }

func (r *gatedTokenRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*entity.AuthToken, error) {
	if err := r.state.gate(); err != nil {
		return nil, err
	}
	return r.fakeTokenRepo.GetOrCreate(ctx, userID)
}

// A signup whose default username is inserted by someone else between the
// availability check and the insert must still succeed: the aborted
// transaction is thrown away and the retry picks the fallback name.
func TestVerifyOTPUsernameRaceRestartsTransaction(t *testing.T) {
	state := &txState{}
	users := &racingUserRepo{fakeUserRepo: newFakeUserRepo(), state: state, racedName: testPhone}
	otps := &gatedOTPRepo{fakeOTPRepo: newFakeOTPRepo(), state: state}
	tokens := &gatedTokenRepo{fakeTokenRepo: newFakeTokenRepo(), state: state}
	gateway := &fakeGateway{}

	repo := &repository.Repository{User: users, OTP: otps, Token: tokens}
	config := &utils.Config{OTP: utils.OTPConfig{Length: 6, ExpiryMinutes: 5}}
	service := NewAuthService(&abortingTxRunner{state: state}, repo, gateway, nil, config, zap.NewNop())

	if err := service.RequestOTP(context.Background(), &request.RequestOTPRequest{PhoneNumber: testPhone}); err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	code := otps.latestFor(testPhone).Code

	resp, err := service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
		PhoneNumber: testPhone,
		OTP:         code,
	})
	if err != nil {
		t.Fatalf("verify must survive the lost username race, got %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected non-empty token")
	}
	if !users.raced {
		t.Fatal("username race was not exercised")
	}

	user, _ := users.fakeUserRepo.FindByPhone(context.Background(), testPhone)
	if user == nil {
		t.Fatal("user not created")
	}
	if !regexp.MustCompile(`^user_[0-9a-f]{8}$`).MatchString(user.Username) {
		t.Errorf("fallback username %q not in user_<hex> form", user.Username)
	}
}

func TestConcurrentVerifySettlesToOneUser(t *testing.T) {
	env := newTestEnv(nil)
	code := env.issue(t, testPhone)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.service.VerifyOTP(context.Background(), &request.VerifyOTPRequest{
				PhoneNumber: testPhone,
				OTP:         code,
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInvalidOTP) {
			t.Errorf("loser must see invalid OTP, got %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("exactly one verify must win, got %d", successes)
	}
	if env.users.count() != 1 {
		t.Errorf("expected one user after race, got %d", env.users.count())
	}
	if env.tokens.count() != 1 {
		t.Errorf("expected one token after race, got %d", env.tokens.count())
	}
}
