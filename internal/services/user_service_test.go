package services

import (
	"context"
	"strings"
	"testing"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUserService_RegisterAndAuthenticate(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_user_register")
	svc := NewUserService(database, testConfig())
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Name: "Gita", Email: " Gita@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "gita@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	_, err = svc.Register(ctx, RegisterInput{Name: "Gita 2", Email: "GITA@example.com", Password: "secret1"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = svc.Register(ctx, RegisterInput{Name: "Short", Email: "short@example.com", Password: "123"})
	assert.True(t, apperrors.IsValidation(err))

	authed, err := svc.Authenticate(ctx, "gita@EXAMPLE.com", "secret1")
	require.NoError(t, err)
	assert.NotNil(t, authed.LastLoginAt)

	_, err = svc.Authenticate(ctx, "gita@example.com", "wrong")
	assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))
	_, err = svc.Authenticate(ctx, "nobody@example.com", "secret1")
	assert.Equal(t, apperrors.KindUnauthenticated, apperrors.KindOf(err))

	_, err = svc.SetActive(ctx, user.ID, false)
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "gita@example.com", "secret1")
	assert.True(t, apperrors.IsForbidden(err))
}

func TestUserService_ProfileAndPassword(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_user_profile")
	svc := NewUserService(database, testConfig())
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Name: "Hari", Email: "hari@example.com", Password: "secret1"})
	require.NoError(t, err)

	name, phone := "Hari Prasad", "9800000000"
	updated, err := svc.UpdateProfile(ctx, user.ID, ProfileInput{Name: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, phone, updated.Phone)

	_, err = svc.UpdateProfile(ctx, user.ID, ProfileInput{})
	assert.True(t, apperrors.IsValidation(err))

	assert.True(t, apperrors.IsValidation(svc.ChangePassword(ctx, user.ID, "wrong", "newsecret")))
	require.NoError(t, svc.ChangePassword(ctx, user.ID, "secret1", "newsecret"))
	_, err = svc.Authenticate(ctx, "hari@example.com", "newsecret")
	assert.NoError(t, err)
}

func TestUserService_AdminOperations(t *testing.T) {
	database := setupServiceDB(t, "egharbari_test_user_admin")
	svc := NewUserService(database, testConfig())
	favorites := NewFavoriteService(database)
	properties := NewPropertyService(database, testConfig(), nil)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "Admin@egharbari.com", "adminpass", "")
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
	assert.Equal(t, "Administrator", admin.Name)

	again, err := svc.EnsureAdmin(ctx, "admin@egharbari.com", "ignored", "Other")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	user, err := svc.Register(ctx, RegisterInput{Name: "Maya", Email: "maya@example.com", Password: "secret1"})
	require.NoError(t, err)

	promoted, err := svc.SetRole(ctx, user.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)
	_, err = svc.SetRole(ctx, user.ID, "superuser")
	assert.True(t, apperrors.IsValidation(err))

	admins, err := svc.Count(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), admins)

	page, err := svc.List(ctx, UserFilter{Query: "maya"}, models.NewPageRequest(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Pagination.Total)

	p, err := properties.Create(ctx, houseInput("Fav House"), admin.ID)
	require.NoError(t, err)
	_, err = favorites.Add(ctx, user.ID, p.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, user.ID))
	assert.True(t, apperrors.IsNotFound(svc.Delete(ctx, user.ID)))
	isFav, err := favorites.IsFavorite(ctx, user.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, isFav)

	_, err = svc.FindByID(ctx, primitive.NewObjectID())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUserService_Register_RejectsOverlongPassword(t *testing.T) {
	svc := NewUserService(nil, testConfig())

	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Hari",
		Email:    "hari@example.com",
		Password: strings.Repeat("p", 73),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
