package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/botnev/botnev-auth/internal/captcha"
	"github.com/botnev/botnev-auth/internal/ratelimit"
	"github.com/botnev/botnev-auth/internal/shared"
)

type pendingKey struct {
	email       string
	fingerprint string
}

type mockRepo struct {
	users    map[string]*User
	pending  map[pendingKey]*PendingVerification
	sessions map[string]*Session
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:    make(map[string]*User),
		pending:  make(map[pendingKey]*PendingVerification),
		sessions: make(map[string]*Session),
	}
}

func (m *mockRepo) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := m.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *mockRepo) CreateUser(ctx context.Context, user *User) error {
	if _, ok := m.users[user.Email]; ok {
		return shared.ErrDuplicate
	}
	copied := *user
	m.users[user.Email] = &copied
	return nil
}

func (m *mockRepo) SetVerified(ctx context.Context, email string) error {
	u, ok := m.users[email]
	if !ok {
		return shared.ErrNotFound
	}
	u.Verified = true
	u.VerificationCode = ""
	return nil
}

func (m *mockRepo) UpdateLastFingerprint(ctx context.Context, email, fingerprint string) error {
	u, ok := m.users[email]
	if !ok {
		return shared.ErrNotFound
	}
	u.LastFingerprint = fingerprint
	return nil
}

func (m *mockRepo) CountUsers(ctx context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

func (m *mockRepo) UpsertPendingVerification(ctx context.Context, pv *PendingVerification) error {
	copied := *pv
	m.pending[pendingKey{pv.Email, pv.Fingerprint}] = &copied
	return nil
}

func (m *mockRepo) GetPendingVerification(ctx context.Context, email, fingerprint string) (*PendingVerification, error) {
	pv, ok := m.pending[pendingKey{email, fingerprint}]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *pv
	return &copied, nil
}

func (m *mockRepo) DeletePendingVerification(ctx context.Context, email, fingerprint string) error {
	delete(m.pending, pendingKey{email, fingerprint})
	return nil
}

func (m *mockRepo) CreateSession(ctx context.Context, sess *Session) error {
	copied := *sess
	m.sessions[sess.Token] = &copied
	return nil
}

func (m *mockRepo) GetSession(ctx context.Context, token string) (*Session, error) {
	sess, ok := m.sessions[token]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *mockRepo) DeleteSession(ctx context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *mockRepo) RotateSession(ctx context.Context, oldToken string, next *Session) error {
	if _, ok := m.sessions[oldToken]; !ok {
		return shared.ErrNotFound
	}
	delete(m.sessions, oldToken)
	copied := *next
	m.sessions[next.Token] = &copied
	return nil
}

func (m *mockRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockRepo) DeleteExpiredPendingVerifications(ctx context.Context) (int64, error) {
	return 0, nil
}

type recordingNotifier struct {
	emails []string
	codes  []string
	err    error
}

func (n *recordingNotifier) SendVerificationCode(ctx context.Context, email, username, code string) error {
	if n.err != nil {
		return n.err
	}
	n.emails = append(n.emails, email)
	n.codes = append(n.codes, code)
	return nil
}

func (n *recordingNotifier) lastCode(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, n.codes, "expected a code to have been sent")
	return n.codes[len(n.codes)-1]
}

type serviceFixture struct {
	service  *Service
	repo     *mockRepo
	notifier *recordingNotifier
	clock    time.Time
}

func newServiceFixture(t *testing.T, mutate func(*ServiceConfig)) *serviceFixture {
	t.Helper()
	cfg := ServiceConfig{
		SessionTTL:      24 * time.Hour,
		RememberTTL:     90 * 24 * time.Hour,
		DeviceCodeTTL:   10 * time.Minute,
		SignupCodeTTL:   15 * time.Minute,
		BindFingerprint: true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	repo := newMockRepo()
	sent := &recordingNotifier{}
	fx := &serviceFixture{
		repo:     repo,
		notifier: sent,
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.service = NewService(ServiceParams{
		Repo:     repo,
		Limiter:  ratelimit.NewLimiter(ratelimit.NewMemoryStore(), 5, 15*time.Minute, nil),
		Captcha:  captcha.StaticVerifier(true),
		Notifier: sent,
		Tokens:   OpaqueStrategy{},
		Config:   cfg,
	})
	fx.service.now = func() time.Time { return fx.clock }
	fx.service.sleep = func(time.Duration) {}
	return fx
}

func (fx *serviceFixture) advance(d time.Duration) {
	fx.clock = fx.clock.Add(d)
}

func (fx *serviceFixture) seedUser(t *testing.T, email, password, fingerprint string, mutate func(*User)) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &User{
		Email:           email,
		Username:        "tester",
		PasswordHash:    string(hash),
		Verified:        true,
		LastFingerprint: fingerprint,
		CreatedAt:       fx.clock,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, fx.repo.CreateUser(context.Background(), user))
}

func TestLoginRecognizedDevice(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
		RemoteIP:    "203.0.113.9",
	})
	require.NoError(t, err)
	assert.False(t, result.VerificationRequired)
	assert.False(t, result.DeviceVerified)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, fx.clock.Add(24*time.Hour), result.ExpiresAt)

	sess, err := fx.repo.GetSession(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, "user@test.local", sess.UserEmail)
	assert.Equal(t, "fp-known", sess.Fingerprint)
	assert.True(t, sess.Verified)
}

func TestLoginRememberMeExtendsSession(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
		RememberMe:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, fx.clock.Add(90*24*time.Hour), result.ExpiresAt)
}

func TestLoginNewDeviceRequiresVerification(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-old", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-new",
	})
	require.NoError(t, err)
	assert.True(t, result.VerificationRequired)
	assert.Empty(t, result.Token)

	code := fx.notifier.lastCode(t)
	assert.Len(t, code, 6)
	assert.Equal(t, []string{"user@test.local"}, fx.notifier.emails)

	pv, err := fx.repo.GetPendingVerification(context.Background(), "user@test.local", "fp-new")
	require.NoError(t, err)
	assert.Equal(t, code, pv.Code)
	assert.Equal(t, fx.clock.Add(10*time.Minute), pv.ExpiresAt)
}

func TestLoginDeviceCodeCompletesAndIsSingleUse(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-old", nil)

	first, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-new",
	})
	require.NoError(t, err)
	require.True(t, first.VerificationRequired)
	code := fx.notifier.lastCode(t)

	second, err := fx.service.Login(context.Background(), LoginInput{
		Email:            "user@test.local",
		Password:         "Sup3r!pass",
		Fingerprint:      "fp-new",
		VerificationCode: code,
	})
	require.NoError(t, err)
	assert.False(t, second.VerificationRequired)
	assert.True(t, second.DeviceVerified)
	assert.NotEmpty(t, second.Token)

	// The fingerprint is now recognized.
	user, err := fx.repo.FindUserByEmail(context.Background(), "user@test.local")
	require.NoError(t, err)
	assert.Equal(t, "fp-new", user.LastFingerprint)

	// Replaying the same code from yet another device must fail: the
	// pending row was deleted before the session was created.
	_, err = fx.repo.GetPendingVerification(context.Background(), "user@test.local", "fp-new")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLoginDeviceCodeWrong(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-old", nil)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-new",
	})
	require.NoError(t, err)

	_, err = fx.service.Login(context.Background(), LoginInput{
		Email:            "user@test.local",
		Password:         "Sup3r!pass",
		Fingerprint:      "fp-new",
		VerificationCode: "000000",
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginDeviceCodeExpired(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-old", nil)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-new",
	})
	require.NoError(t, err)
	code := fx.notifier.lastCode(t)

	fx.advance(11 * time.Minute)

	_, err = fx.service.Login(context.Background(), LoginInput{
		Email:            "user@test.local",
		Password:         "Sup3r!pass",
		Fingerprint:      "fp-new",
		VerificationCode: code,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)
	fx.seedUser(t, "ghost@test.local", "Sup3r!pass", "fp-known", func(u *User) {
		u.Verified = false
	})
	fx.seedUser(t, "trap@test.local", "Sup3r!pass", "fp-known", func(u *User) {
		u.Honeytoken = true
	})

	cases := []LoginInput{
		{Email: "user@test.local", Password: "wrong", Fingerprint: "fp-known"},
		{Email: "nobody@test.local", Password: "Sup3r!pass", Fingerprint: "fp-known"},
		{Email: "ghost@test.local", Password: "Sup3r!pass", Fingerprint: "fp-known"},
		{Email: "trap@test.local", Password: "Sup3r!pass", Fingerprint: "fp-known"},
	}
	for _, input := range cases {
		_, err := fx.service.Login(context.Background(), input)
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials, "input %q", input.Email)
	}
}

func TestLoginCaptchaFailsClosed(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)
	fx.service.captcha = captcha.StaticVerifier(false)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	assert.ErrorIs(t, err, shared.ErrCaptchaFailed)
}

func TestLoginCaptchaSkippedOnCodeResubmission(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-old", nil)

	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-new",
	})
	require.NoError(t, err)
	code := fx.notifier.lastCode(t)

	// The resubmission carries no captcha token and the verifier would
	// now reject everything, yet the code confirmation still completes.
	fx.service.captcha = captcha.StaticVerifier(false)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:            "user@test.local",
		Password:         "Sup3r!pass",
		Fingerprint:      "fp-new",
		VerificationCode: code,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestLoginRateLimitPrecedesCredentials(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	for i := 0; i < 5; i++ {
		_, err := fx.service.Login(context.Background(), LoginInput{
			Email:       "user@test.local",
			Password:    "wrong",
			Fingerprint: "fp-known",
			RemoteIP:    "203.0.113.9",
		})
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	}

	// Correct credentials are rejected once the ceiling is reached.
	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
		RemoteIP:    "203.0.113.9",
	})
	assert.ErrorIs(t, err, shared.ErrRateLimited)

	// A different source address gets its own counter.
	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
		RemoteIP:    "198.51.100.7",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	for i := 0; i < 4; i++ {
		_, err := fx.service.Login(context.Background(), LoginInput{
			Email:       "user@test.local",
			Password:    "wrong",
			Fingerprint: "fp-known",
		})
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	}
	_, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	require.NoError(t, err)

	// The counter was reset, so a fresh run of failures fits again.
	for i := 0; i < 4; i++ {
		_, err := fx.service.Login(context.Background(), LoginInput{
			Email:       "user@test.local",
			Password:    "wrong",
			Fingerprint: "fp-known",
		})
		require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "  USER@test.local ",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestSignupThenVerify(t *testing.T) {
	fx := newServiceFixture(t, nil)

	err := fx.service.Signup(context.Background(), SignupInput{
		Email:    "new@test.local",
		Password: "Sup3r!pass",
	})
	require.NoError(t, err)

	user, err := fx.repo.FindUserByEmail(context.Background(), "new@test.local")
	require.NoError(t, err)
	assert.False(t, user.Verified)
	assert.Equal(t, "new", user.Username)
	assert.Len(t, user.VerificationCode, 8)
	assert.Equal(t, user.VerificationCode, fx.notifier.lastCode(t))

	// Wrong code is rejected without disclosing which part failed.
	err = fx.service.VerifySignup(context.Background(), "new@test.local", "bogus")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, fx.service.VerifySignup(context.Background(), "new@test.local", user.VerificationCode))
	user, err = fx.repo.FindUserByEmail(context.Background(), "new@test.local")
	require.NoError(t, err)
	assert.True(t, user.Verified)

	// Re-verifying is a no-op.
	require.NoError(t, fx.service.VerifySignup(context.Background(), "new@test.local", "anything"))
}

func TestVerifySignupExpiredCode(t *testing.T) {
	fx := newServiceFixture(t, nil)
	require.NoError(t, fx.service.Signup(context.Background(), SignupInput{
		Email:    "new@test.local",
		Password: "Sup3r!pass",
	}))
	code := fx.notifier.lastCode(t)

	fx.advance(16 * time.Minute)

	err := fx.service.VerifySignup(context.Background(), "new@test.local", code)
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestVerifySignupUnknownUser(t *testing.T) {
	fx := newServiceFixture(t, nil)
	err := fx.service.VerifySignup(context.Background(), "nobody@test.local", "12345678")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSignupWeakPassword(t *testing.T) {
	fx := newServiceFixture(t, nil)
	err := fx.service.Signup(context.Background(), SignupInput{
		Email:    "new@test.local",
		Password: "short",
	})
	assert.ErrorIs(t, err, shared.ErrPasswordPolicy)
}

func TestSignupDuplicateEmail(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "", nil)

	err := fx.service.Signup(context.Background(), SignupInput{
		Email:    "user@test.local",
		Password: "Sup3r!pass",
	})
	assert.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestSignupCap(t *testing.T) {
	fx := newServiceFixture(t, func(cfg *ServiceConfig) {
		cfg.SignupCap = 1
		cfg.SignupAllowEmail = "vip@test.local"
	})
	fx.seedUser(t, "existing@test.local", "Sup3r!pass", "", nil)

	err := fx.service.Signup(context.Background(), SignupInput{
		Email:    "late@test.local",
		Password: "Sup3r!pass",
	})
	assert.ErrorIs(t, err, shared.ErrSignupClosed)

	// The allow-listed address bypasses the cap.
	err = fx.service.Signup(context.Background(), SignupInput{
		Email:    "vip@test.local",
		Password: "Sup3r!pass",
	})
	require.NoError(t, err)
}

func TestSignupNotifierFailureSurfaces(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.notifier.err = context.DeadlineExceeded

	err := fx.service.Signup(context.Background(), SignupInput{
		Email:    "new@test.local",
		Password: "Sup3r!pass",
	})
	assert.ErrorIs(t, err, shared.ErrNotifierUnavailable)
}

func TestValidateSession(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	require.NoError(t, err)

	email, err := fx.service.ValidateSession(context.Background(), result.Token, "fp-known")
	require.NoError(t, err)
	assert.Equal(t, "user@test.local", email)
}

func TestValidateSessionExpiredEqualsAbsent(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	require.NoError(t, err)

	fx.advance(25 * time.Hour)

	_, err = fx.service.ValidateSession(context.Background(), result.Token, "fp-known")
	assert.ErrorIs(t, err, shared.ErrSessionInvalid)

	_, err = fx.service.ValidateSession(context.Background(), "no-such-token", "fp-known")
	assert.ErrorIs(t, err, shared.ErrSessionInvalid)

	// The expired row was purged eagerly.
	_, err = fx.repo.GetSession(context.Background(), result.Token)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestValidateSessionFingerprintMismatch(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	require.NoError(t, err)

	_, err = fx.service.ValidateSession(context.Background(), result.Token, "fp-other")
	assert.ErrorIs(t, err, shared.ErrSessionInvalid)
}

func TestRotateSession(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	require.NoError(t, err)

	newToken, expiresAt, err := fx.service.RotateSession(context.Background(), result.Token)
	require.NoError(t, err)
	assert.NotEqual(t, result.Token, newToken)
	assert.Equal(t, result.ExpiresAt, expiresAt)

	_, err = fx.service.ValidateSession(context.Background(), result.Token, "fp-known")
	assert.ErrorIs(t, err, shared.ErrSessionInvalid)

	email, err := fx.service.ValidateSession(context.Background(), newToken, "fp-known")
	require.NoError(t, err)
	assert.Equal(t, "user@test.local", email)
}

func TestLogout(t *testing.T) {
	fx := newServiceFixture(t, nil)
	fx.seedUser(t, "user@test.local", "Sup3r!pass", "fp-known", nil)

	result, err := fx.service.Login(context.Background(), LoginInput{
		Email:       "user@test.local",
		Password:    "Sup3r!pass",
		Fingerprint: "fp-known",
	})
	require.NoError(t, err)

	require.NoError(t, fx.service.Logout(context.Background(), result.Token))
	_, err = fx.service.ValidateSession(context.Background(), result.Token, "fp-known")
	assert.ErrorIs(t, err, shared.ErrSessionInvalid)

	// Logging out with no token is a no-op.
	require.NoError(t, fx.service.Logout(context.Background(), ""))
}
