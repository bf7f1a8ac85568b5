package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arif-dev/tuition-track-api/internal/models"
	appErrors "github.com/arif-dev/tuition-track-api/pkg/errors"
)

type fakeUserRepo struct {
	byUsername map[string]*models.User
	usernameDB error
	byID       map[string]*models.User
	created    []*models.User
	updated    []*models.User
	deleted    []string
}

func (f *fakeUserRepo) List(context.Context, models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := f.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByEmail(context.Context, string) (*models.User, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	if f.usernameDB != nil {
		return nil, f.usernameDB
	}
	if user, ok := f.byUsername[username]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	f.created = append(f.created, user)
	return nil
}

func (f *fakeUserRepo) Update(_ context.Context, user *models.User) error {
	f.updated = append(f.updated, user)
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func lookupErrCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestUserServiceLookupEmailReturnsEmail(t *testing.T) {
	repo := &fakeUserRepo{byUsername: map[string]*models.User{
		"budi": {ID: "u1", Username: "budi", Email: "budi@example.com"},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	res, err := svc.LookupEmail(context.Background(), models.LookupEmailRequest{Username: "  budi  "})
	require.NoError(t, err)
	assert.Equal(t, "budi@example.com", res.Email)
}

func TestUserServiceLookupEmailValidation(t *testing.T) {
	svc := NewUserService(&fakeUserRepo{}, nil, nil, nil)

	_, err := svc.LookupEmail(context.Background(), models.LookupEmailRequest{Username: "   "})
	assert.Equal(t, appErrors.ErrValidation.Code, lookupErrCode(t, err))

	_, err = svc.LookupEmail(context.Background(), models.LookupEmailRequest{Username: strings.Repeat("x", 65)})
	assert.Equal(t, appErrors.ErrValidation.Code, lookupErrCode(t, err))
}

func TestUserServiceLookupEmailUnknownUsername(t *testing.T) {
	svc := NewUserService(&fakeUserRepo{}, nil, nil, nil)

	_, err := svc.LookupEmail(context.Background(), models.LookupEmailRequest{Username: "ghost"})
	assert.Equal(t, appErrors.ErrNotFound.Code, lookupErrCode(t, err))
}

func TestUserServiceLookupEmailIsCaseSensitive(t *testing.T) {
	repo := &fakeUserRepo{byUsername: map[string]*models.User{
		"budi": {ID: "u1", Username: "budi", Email: "budi@example.com"},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.LookupEmail(context.Background(), models.LookupEmailRequest{Username: "Budi"})
	assert.Equal(t, appErrors.ErrNotFound.Code, lookupErrCode(t, err))
}

func TestUserServiceLookupEmailNoEmailOnRecord(t *testing.T) {
	repo := &fakeUserRepo{byUsername: map[string]*models.User{
		"budi": {ID: "u1", Username: "budi", Email: "  "},
	}}
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.LookupEmail(context.Background(), models.LookupEmailRequest{Username: "budi"})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, lookupErrCode(t, err))
}

func TestUserServiceLookupEmailWrapsStorageFailures(t *testing.T) {
	repo := &fakeUserRepo{usernameDB: errors.New("connection refused")}
	svc := NewUserService(repo, nil, nil, nil)

	_, err := svc.LookupEmail(context.Background(), models.LookupEmailRequest{Username: "budi"})
	assert.Equal(t, appErrors.ErrInternal.Code, lookupErrCode(t, err))
}

func TestUserServiceUpdateInvalidatesStatusCache(t *testing.T) {
	cache := NewStudentStatusCache(8, 0)
	cache.Set("u1", true)
	repo := &fakeUserRepo{byID: map[string]*models.User{
		"u1": {ID: "u1", Role: models.RoleStudent, FullName: "Student One", Active: true},
	}}
	svc := NewUserService(repo, cache, nil, nil)

	inactive := false
	_, err := svc.Update(context.Background(), "u1", UpdateUserRequest{
		FullName: "Student One",
		Role:     models.RoleStudent,
		Active:   &inactive,
	})
	require.NoError(t, err)

	_, ok := cache.Get("u1")
	assert.False(t, ok, "stale active flag must not survive an update")
}
