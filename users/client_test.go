package users_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/flavory-client/apiclient"
	"github.com/jrsteele09/flavory-client/credentials"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/jrsteele09/flavory-client/internal/utils"
	"github.com/jrsteele09/flavory-client/querycache"
	"github.com/jrsteele09/flavory-client/users"
	"github.com/jrsteele09/flavory-client/users/usersfake"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	api    *usersfake.API
	store  credentials.Store
	cache  *querycache.Cache
	client *users.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := usersfake.New()
	api.AddUser(users.User{ID: 1, Auth0ID: "auth0|ada", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}, "token-ada")
	api.AddUser(users.User{ID: 2, Email: "bob@example.com", FirstName: "Bob", LastName: "Baker", Role: users.RoleCook}, "token-bob")

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore()
	store.Set(&credentials.Credential{AccessToken: "token-ada", ExpiresAt: time.Now().Add(time.Hour)})
	cache := querycache.New()
	client := users.NewClient(apiclient.New(server.URL, apiclient.WithCredentialStore(store)), cache)
	return &fixture{api: api, store: store, cache: cache, client: client}
}

func TestClient_GetCurrentUser(t *testing.T) {
	f := newFixture(t)

	user, err := f.client.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.Equal(t, "Ada Lovelace", user.DisplayName())
	require.Equal(t, users.RoleCustomer, user.Role)

	_, err = f.client.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.api.CountRequests(http.MethodGet, "/users/me"), "second read is served from the cache")

	_, err = f.client.GetUser(context.Background(), 1)
	require.NoError(t, err)
	require.Zero(t, f.api.CountRequests(http.MethodGet, "/users/1"), "current user also fills the by-id entry")
}

func TestClient_GetUser(t *testing.T) {
	f := newFixture(t)

	t.Run("other users are forbidden", func(t *testing.T) {
		_, err := f.client.GetUser(context.Background(), 2)
		require.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("missing", func(t *testing.T) {
		f.api.AddUser(users.User{ID: 99, Role: users.RoleAdmin}, "token-admin")
		f.store.Set(&credentials.Credential{AccessToken: "token-admin"})

		_, err := f.client.GetUser(context.Background(), 404)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
		require.Equal(t, "User not found", apiclient.ErrorMessage(err))
	})
}

func TestClient_UpdateUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.GetCurrentUser(context.Background())
	require.NoError(t, err)

	updated, err := f.client.UpdateUser(context.Background(), 1, users.UpdateUserRequest{
		FirstName:   "Augusta",
		LastName:    "King",
		PhoneNumber: "+48123456789",
	})
	require.NoError(t, err)
	require.Equal(t, "Augusta King", updated.FullName)

	current, err := f.client.GetCurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Augusta", current.FirstName)
	require.Equal(t, 1, f.api.CountRequests(http.MethodGet, "/users/me"), "cached user is replaced, not refetched")

	t.Run("invalid request is not sent", func(t *testing.T) {
		_, err := f.client.UpdateUser(context.Background(), 1, users.UpdateUserRequest{FirstName: "A", LastName: "King"})
		require.ErrorIs(t, err, apperrors.ErrValidation)
		require.Equal(t, 1, f.api.CountRequests(http.MethodPut, "/users/1"))
	})
}

func TestClient_DeleteUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.client.GetCurrentUser(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.client.DeleteUser(context.Background(), 1))
	_, ok := f.cache.Get(querycache.KeyCurrentUser)
	require.False(t, ok)
	_, ok = f.api.User(1)
	require.False(t, ok)
}

func TestClient_Addresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.client.ListAddresses(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, list)

	home, err := f.client.CreateAddress(ctx, 1, users.CreateAddressRequest{
		Street:     "Marszałkowska 1",
		City:       "Warszawa",
		PostalCode: "00-001",
		Label:      "Home",
		Latitude:   utils.Ptr(52.23),
		Longitude:  utils.Ptr(21.01),
	})
	require.NoError(t, err)
	require.True(t, home.IsDefault, "first address becomes the default")
	require.Equal(t, "Poland", home.Country)

	work, err := f.client.CreateAddress(ctx, 1, users.CreateAddressRequest{
		Street:     "Długa 5",
		City:       "Gdańsk",
		PostalCode: "80-001",
	})
	require.NoError(t, err)
	require.False(t, work.IsDefault)

	list, err = f.client.ListAddresses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2, "creating an address invalidates the list")

	_, err = f.client.SetDefaultAddress(ctx, 1, work.ID)
	require.NoError(t, err)
	list, err = f.client.ListAddresses(ctx, 1)
	require.NoError(t, err)
	require.False(t, list[0].IsDefault)
	require.True(t, list[1].IsDefault)

	updated, err := f.client.UpdateAddress(ctx, 1, work.ID, users.UpdateAddressRequest{ApartmentNumber: utils.Ptr("12")})
	require.NoError(t, err)
	require.Equal(t, "Długa 5/12, 80-001 Gdańsk, Poland", updated.FullAddress)
	require.Equal(t, "Gdańsk", updated.City, "unset fields are kept")

	got, err := f.client.GetAddress(ctx, 1, work.ID)
	require.NoError(t, err)
	require.Equal(t, "12", got.ApartmentNumber)

	byAuth0, err := f.client.GetDefaultAddressByAuth0ID(ctx, "auth0|ada")
	require.NoError(t, err)
	require.Equal(t, work.ID, byAuth0.ID)

	require.NoError(t, f.client.DeleteAddress(ctx, 1, home.ID))
	list, err = f.client.ListAddresses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.client.GetAddress(ctx, 1, home.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestClient_AddressValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.CreateAddress(context.Background(), 1, users.CreateAddressRequest{Street: "Długa 5", City: "Gdańsk", PostalCode: "80001"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Zero(t, f.api.CountRequests(http.MethodPost, "/users/1/addresses"))
}

func TestClient_Unauthorized(t *testing.T) {
	f := newFixture(t)
	f.api.RevokeToken("token-ada")

	_, err := f.client.GetCurrentUser(context.Background())
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.Nil(t, f.store.Get())
	_, ok := f.cache.Get(querycache.KeyCurrentUser)
	require.False(t, ok, "errors are not cached")
}
