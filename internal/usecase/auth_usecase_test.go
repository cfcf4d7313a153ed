package usecase

import (
	"context"
	"net/http"
	"testing"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// mocks
// =====================

type UserRepoMock struct{ mock.Mock }

func (m *UserRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = 1
	}
	return args.Error(0)
}

func (m *UserRepoMock) FindByID(ctx context.Context, userID int64) (*model.User, error) {
	args := m.Called(ctx, userID)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

type stubIssuer struct{}

func (s *stubIssuer) Issue(user *model.User, now time.Time) (string, time.Time, error) {
	return "stub-token", now.Add(time.Hour), nil
}

type fixedClock struct{}

func (c *fixedClock) Now() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newAuthUsecaseWithMocks() (*AuthUsecase, *UserRepoMock) {
	users := &UserRepoMock{}
	uc := NewAuthUsecase(
		users,
		NewBcryptPasswordHasher(4), // テストは最小コスト
		NewBcryptPasswordVerifier(),
		&stubIssuer{},
		&fixedClock{},
	)
	return uc, users
}

// =====================
// Register
// =====================

func TestRegister_Success(t *testing.T) {
	uc, users := newAuthUsecaseWithMocks()

	users.On("FindByEmail", mock.Anything, "taro@example.com").Return(nil, repo.ErrUserNotFound)
	users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		//平文は保存しない
		return u.Email == "taro@example.com" &&
			u.Role == model.RoleUser &&
			u.PasswordHash != "" &&
			u.PasswordHash != "password123"
	})).Return(nil)

	user, err := uc.Register(context.Background(), RegisterInput{
		Name:     "Taro",
		Email:    "taro@example.com",
		Password: "password123",
	})

	assert.NoError(t, err)
	assert.Equal(t, "Taro", user.Name)
	assert.Equal(t, model.RoleUser, user.Role)
	users.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	uc, users := newAuthUsecaseWithMocks()

	existing := &model.User{ID: 1, Email: "taro@example.com"}
	users.On("FindByEmail", mock.Anything, "taro@example.com").Return(existing, nil)

	_, err := uc.Register(context.Background(), RegisterInput{
		Name:     "Taro",
		Email:    "taro@example.com",
		Password: "password123",
	})

	assertHTTPError(t, err, http.StatusBadRequest, "user already exists")
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_InvalidInput(t *testing.T) {
	uc, _ := newAuthUsecaseWithMocks()

	//email形式エラー
	_, err := uc.Register(context.Background(), RegisterInput{
		Email:    "not-an-email",
		Password: "password123",
	})
	assertHTTPError(t, err, http.StatusBadRequest, "")

	//short password
	_, err = uc.Register(context.Background(), RegisterInput{
		Email:    "taro@example.com",
		Password: "short",
	})
	assertHTTPError(t, err, http.StatusBadRequest, "")
}

// =====================
// Login
// =====================

func TestLogin_Success(t *testing.T) {
	uc, users := newAuthUsecaseWithMocks()

	hash, err := NewBcryptPasswordHasher(4).Hash("password123")
	assert.NoError(t, err)

	users.On("FindByEmail", mock.Anything, "taro@example.com").Return(&model.User{
		ID:           1,
		Email:        "taro@example.com",
		PasswordHash: hash,
		Role:         model.RoleUser,
	}, nil)

	out, err := uc.Login(context.Background(), LoginInput{
		Email:    "taro@example.com",
		Password: "password123",
	})

	assert.NoError(t, err)
	assert.Equal(t, "stub-token", out.Token)
	assert.Equal(t, int64(1), out.User.ID)
}

func TestLogin_UnknownUser(t *testing.T) {
	uc, users := newAuthUsecaseWithMocks()

	users.On("FindByEmail", mock.Anything, "nobody@example.com").Return(nil, repo.ErrUserNotFound)

	_, err := uc.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "password123",
	})

	assertHTTPError(t, err, http.StatusNotFound, "user not found")
}

func TestLogin_WrongPassword(t *testing.T) {
	uc, users := newAuthUsecaseWithMocks()

	hash, err := NewBcryptPasswordHasher(4).Hash("password123")
	assert.NoError(t, err)

	users.On("FindByEmail", mock.Anything, "taro@example.com").Return(&model.User{
		ID:           1,
		Email:        "taro@example.com",
		PasswordHash: hash,
	}, nil)

	_, err = uc.Login(context.Background(), LoginInput{
		Email:    "taro@example.com",
		Password: "wrong-password",
	})

	assertHTTPError(t, err, http.StatusUnauthorized, "invalid credentials")
}
