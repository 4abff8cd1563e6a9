package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillforge/skillforge-api/internal/models"
	appErrors "github.com/skillforge/skillforge-api/pkg/errors"
)

type mockAuthRepo struct {
	usersByEmail  map[string]*models.User
	usersByID     map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	auditLogs     []*models.AuditLog
	lastLoginSet  bool
	revokedAll    bool
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		usersByEmail:  make(map[string]*models.User),
		usersByID:     make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
	}
}

func (m *mockAuthRepo) addUser(user *models.User) {
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := m.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	m.addUser(user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginSet = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if user, ok := m.usersByID[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = true
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "skillforge-test",
	}
}

func TestSignupIssuesSession(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Signup(context.Background(), models.SignupRequest{
		FullName: "Ada Lovelace",
		Email:    "Ada@Example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	assert.Equal(t, "ada@example.com", res.User.Email)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestSignupDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Signup(context.Background(), models.SignupRequest{FullName: "A", Email: "a@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), models.SignupRequest{FullName: "B", Email: "a@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSignupRejectsAdminRole(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Signup(context.Background(), models.SignupRequest{
		FullName: "Mallory",
		Email:    "mallory@example.com",
		Password: "secret123",
		Role:     models.RoleAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLoginSuccessAndWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.addUser(&models.User{ID: "user-1", Email: "ada@example.com", PasswordHash: string(hash), Role: models.RoleStudent, Active: true})

	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.True(t, repo.lastLoginSet)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	repo.addUser(&models.User{ID: "user-1", Email: "ada@example.com", PasswordHash: string(hash), Active: false})

	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	session, err := svc.Signup(context.Background(), models.SignupRequest{FullName: "Ada", Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, refreshed.RefreshToken)

	// the consumed token cannot be replayed
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: session.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	session, err := svc.Signup(context.Background(), models.SignupRequest{FullName: "Ada", Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), session.User.ID, models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "evenbetter456",
	})
	require.NoError(t, err)
	assert.True(t, repo.revokedAll)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "evenbetter456"})
	require.NoError(t, err)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := NewAuthService(newMockAuthRepo(), nil, nil, testAuthConfig())

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)

	other := NewAuthService(newMockAuthRepo(), nil, nil, AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Hour,
	})
	session, err := other.Signup(context.Background(), models.SignupRequest{FullName: "Eve", Email: "eve@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(session.AccessToken)
	require.Error(t, err)
}
