package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users  map[string]*model.User
	tokens map[string]*model.RefreshToken
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:  make(map[string]*model.User),
		tokens: make(map[string]*model.RefreshToken),
	}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	cp := *user
	r.users[user.ID.String()] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *user
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, errors.New("record not found")
}

func (r *fakeUserRepo) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	var out []model.User
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	cp := *user
	r.users[user.ID.String()] = &cp
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	cp := *token
	r.tokens[token.Token] = &cp
	return nil
}

func (r *fakeUserRepo) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	rt, ok := r.tokens[token]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *rt
	return &cp, nil
}

func (r *fakeUserRepo) DeleteRefreshToken(ctx context.Context, token string) error {
	delete(r.tokens, token)
	return nil
}

func newUserService() (UserService, *fakeUserRepo, *fakeAuditRepo) {
	repo := newFakeUserRepo()
	audits := &fakeAuditRepo{}
	return NewUserService(repo, audits), repo, audits
}

func signupForm() SignupRequest {
	return SignupRequest{
		FullName: "Maria Lopez",
		Email:    "maria@example.com",
		Phone:    "+51987654321",
		Password: "secret123",
	}
}

func TestSignupCreatesApplicant(t *testing.T) {
	svc, repo, audits := newUserService()

	user, tokens, err := svc.Signup(context.Background(), signupForm())
	require.NoError(t, err)

	assert.Equal(t, model.RoleApplicant, user.Role, "public signup always yields an applicant")
	assert.NotEmpty(t, tokens.Token)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Contains(t, audits.actions(), model.ActionCreateUser)

	stored, err := repo.GetByEmail(context.Background(), "maria@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.Password, "password must be hashed")
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, _, _ := newUserService()

	_, _, err := svc.Signup(context.Background(), signupForm())
	require.NoError(t, err)

	_, _, err = svc.Signup(context.Background(), signupForm())
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestLogin(t *testing.T) {
	svc, _, _ := newUserService()
	_, _, err := svc.Signup(context.Background(), signupForm())
	require.NoError(t, err)

	user, tokens, err := svc.Login(context.Background(), LoginUserRequest{
		Email: "maria@example.com", Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", user.Email)
	assert.NotEmpty(t, tokens.Token)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newUserService()
	_, _, err := svc.Signup(context.Background(), signupForm())
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), LoginUserRequest{
		Email: "maria@example.com", Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))

	_, _, err = svc.Login(context.Background(), LoginUserRequest{
		Email: "nobody@example.com", Password: "secret123",
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, repo, _ := newUserService()
	_, tokens, err := svc.Signup(context.Background(), signupForm())
	require.NoError(t, err)

	fresh, err := svc.Refresh(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, fresh.RefreshToken)

	// The consumed token is gone.
	_, err = repo.GetRefreshToken(context.Background(), tokens.RefreshToken)
	require.Error(t, err)

	_, err = svc.Refresh(context.Background(), tokens.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
}

func TestRefreshExpiredToken(t *testing.T) {
	svc, repo, _ := newUserService()
	_, tokens, err := svc.Signup(context.Background(), signupForm())
	require.NoError(t, err)

	repo.tokens[tokens.RefreshToken].ExpiresAt = time.Now().Add(-time.Hour)

	_, err = svc.Refresh(context.Background(), tokens.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
}

func TestCreateUserValidatesRole(t *testing.T) {
	svc, _, _ := newUserService()

	_, err := svc.CreateUser(context.Background(), CreateUserRequest{
		FullName: "Ops", Email: "ops@example.com", Password: "secret123", Role: "superuser",
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	staff, err := svc.CreateUser(context.Background(), CreateUserRequest{
		FullName: "Ops", Email: "ops@example.com", Password: "secret123", Role: model.RoleStaff,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, staff.Role)
}
