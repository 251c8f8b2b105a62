package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/flavory-client/apiclient"
	"github.com/jrsteele09/flavory-client/credentials"
	"github.com/jrsteele09/flavory-client/identity/identityfake"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/jrsteele09/flavory-client/querycache"
	"github.com/jrsteele09/flavory-client/sessions"
	"github.com/jrsteele09/flavory-client/users"
	"github.com/jrsteele09/flavory-client/users/usersfake"
	"github.com/stretchr/testify/require"
)

type fakeUserInfo struct {
	token string
}

func (f *fakeUserInfo) UserInfo(_ context.Context, accessToken string) (*oidc.UserInfo, error) {
	f.token = accessToken
	return &oidc.UserInfo{Subject: "auth0|ada", Email: "ada@example.com", EmailVerified: true}, nil
}

type shellFixture struct {
	api      *usersfake.API
	provider *identityfake.Provider
	out      *bytes.Buffer
	userInfo *fakeUserInfo
	shell    *shell
}

func newShellFixture(t *testing.T) *shellFixture {
	t.Helper()
	api := usersfake.New()
	api.AddUser(users.User{ID: 1, Auth0ID: "auth0|ada", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"}, "access-token")

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore()
	cache := querycache.New()
	provider := identityfake.New(store)

	a := &app{store: store, cache: cache}
	a.api = apiclient.New(server.URL,
		apiclient.WithCredentialStore(store),
		apiclient.WithUnauthorizedHandler(a.handleUnauthorized),
	)
	a.users = users.NewClient(a.api, cache)
	a.session = sessions.NewController(provider, a.users, store, sessions.WithCache(cache))

	out := &bytes.Buffer{}
	userInfo := &fakeUserInfo{}
	sh := newShell(a, strings.NewReader(""), out)
	sh.identity = userInfo
	return &shellFixture{api: api, provider: provider, out: out, userInfo: userInfo, shell: sh}
}

func (f *shellFixture) exec(t *testing.T, line string) (string, error) {
	t.Helper()
	f.out.Reset()
	args, err := splitArgs(line)
	require.NoError(t, err)
	err = f.shell.execute(context.Background(), args)
	return f.out.String(), err
}

func TestShell_RequiresLogin(t *testing.T) {
	f := newShellFixture(t)

	for _, line := range []string{"me", "addresses", "address-default 1", "update-profile first=Ada"} {
		t.Run(line, func(t *testing.T) {
			_, err := f.exec(t, line)
			require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		})
	}
	require.Empty(t, f.api.Requests())
}

func TestShell_Session(t *testing.T) {
	f := newShellFixture(t)

	out, err := f.exec(t, "status")
	require.NoError(t, err)
	require.Equal(t, "Signed out\n", out)

	out, err = f.exec(t, "login")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as Ada Lovelace")

	out, err = f.exec(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as Ada Lovelace (ada@example.com)")
	require.Contains(t, out, "Access token expires")

	out, err = f.exec(t, "me")
	require.NoError(t, err)
	require.Contains(t, out, "role:     CUSTOMER")

	out, err = f.exec(t, "userinfo")
	require.NoError(t, err)
	require.Contains(t, out, "subject:  auth0|ada")
	require.Equal(t, "access-token", f.userInfo.token)

	out, err = f.exec(t, "logout")
	require.NoError(t, err)
	require.Equal(t, "Signed out\n", out)
	require.False(t, f.shell.session.IsAuthenticated())
}

func TestShell_LoginWithExpiredCredential(t *testing.T) {
	f := newShellFixture(t)
	f.provider.LoginFunc = func(context.Context) (*credentials.Credential, error) {
		return identityfake.Credential("access-token", time.Now().Add(-time.Minute)), nil
	}

	out, err := f.exec(t, "login")
	require.ErrorIs(t, err, apperrors.ErrAuthFailure)
	require.NotContains(t, out, "Signed in as")

	out, err = f.exec(t, "status")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "Sign in failed: "))
}

func TestShell_UpdateProfile(t *testing.T) {
	f := newShellFixture(t)
	_, err := f.exec(t, "login")
	require.NoError(t, err)

	out, err := f.exec(t, `update-profile last="Byron-King" phone=+48123456789`)
	require.NoError(t, err)
	require.Contains(t, out, "Ada Byron-King")
	require.Contains(t, out, "phone:    +48123456789")

	stored, ok := f.api.User(1)
	require.True(t, ok)
	require.Equal(t, "Ada", stored.FirstName, "unset fields keep their current value")

	t.Run("invalid values are not sent", func(t *testing.T) {
		before := f.api.CountRequests(http.MethodPut, "/users/1")
		_, err := f.exec(t, "update-profile phone=123")
		require.ErrorIs(t, err, apperrors.ErrValidation)
		require.Equal(t, before, f.api.CountRequests(http.MethodPut, "/users/1"))

		f.shell.printError(err)
		require.Contains(t, f.out.String(), "phoneNumber:")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := f.exec(t, "update-profile nickname=ada")
		require.ErrorContains(t, err, `unknown field "nickname"`)
	})
}

func TestShell_Addresses(t *testing.T) {
	f := newShellFixture(t)
	_, err := f.exec(t, "login")
	require.NoError(t, err)

	out, err := f.exec(t, "addresses")
	require.NoError(t, err)
	require.Equal(t, "No saved addresses\n", out)

	out, err = f.exec(t, `address-add street="Nowy Świat 5" city=Warszawa postal=00-029 label=home`)
	require.NoError(t, err)
	require.Contains(t, out, "* ")
	require.Contains(t, out, "Nowy Świat 5, 00-029 Warszawa, Poland")

	_, err = f.exec(t, `address-add street="Długa 1" city=Gdańsk postal=80-827 apt=3 label=work`)
	require.NoError(t, err)

	out, err = f.exec(t, "addresses")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, out, "Długa 1/3, 80-827 Gdańsk, Poland")

	out, err = f.exec(t, "address-default 2")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "*"))

	out, err = f.exec(t, "address-update 2 city=Sopot")
	require.NoError(t, err)
	require.Contains(t, out, "80-827 Sopot")

	out, err = f.exec(t, "default-address auth0|ada")
	require.NoError(t, err)
	require.Contains(t, out, "Sopot")

	out, err = f.exec(t, "address-delete 1")
	require.NoError(t, err)
	require.Equal(t, "Deleted address 1\n", out)

	_, err = f.exec(t, "address 1")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	t.Run("bad id", func(t *testing.T) {
		_, err := f.exec(t, "address-delete first")
		require.ErrorContains(t, err, "invalid address id")
	})

	t.Run("bad postal code", func(t *testing.T) {
		_, err := f.exec(t, "address-add street=Krótka city=Łódź postal=90000")
		require.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestShell_RevokedToken(t *testing.T) {
	f := newShellFixture(t)
	_, err := f.exec(t, "login")
	require.NoError(t, err)

	f.api.RevokeToken("access-token")
	f.shell.users.Cache().Clear()

	_, err = f.exec(t, "me")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.False(t, f.shell.session.IsAuthenticated())

	f.shell.printError(err)
	require.True(t, strings.HasPrefix(f.out.String(), "Error: "))
}

func TestShell_Run(t *testing.T) {
	f := newShellFixture(t)
	f.shell.in = strings.NewReader("help\n\nbogus\nstatus\nquit\nstatus\n")

	require.NoError(t, f.shell.run(context.Background()))
	out := f.out.String()
	require.Contains(t, out, "address-default")
	require.Contains(t, out, `unknown command "bogus"`)
	require.Equal(t, 1, strings.Count(out, "Signed out"), "nothing after quit runs")
}

func TestShell_RunStopsOnCancel(t *testing.T) {
	f := newShellFixture(t)
	reader, writer := io.Pipe()
	defer writer.Close()
	f.shell.in = reader

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.shell.run(ctx))
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "", want: nil},
		{line: "  me  ", want: []string{"me"}},
		{line: "address-update 2\tcity=Sopot", want: []string{"address-update", "2", "city=Sopot"}},
		{line: `address-add street="Nowy Świat 5" city=Warszawa`, want: []string{"address-add", "street=Nowy Świat 5", "city=Warszawa"}},
		{line: `update-profile cook=""`, want: []string{"update-profile", "cook="}},
		{line: `update-profile cook="unfinished`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitArgs(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
