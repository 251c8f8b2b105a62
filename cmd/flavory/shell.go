package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dustin/go-humanize"
	"github.com/jrsteele09/flavory-client/apiclient"
	"github.com/jrsteele09/flavory-client/credentials"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
	"github.com/jrsteele09/flavory-client/internal/utils"
	"github.com/jrsteele09/flavory-client/sessions"
	"github.com/jrsteele09/flavory-client/users"
)

const (
	prompt       = "flavory> "
	loginTimeout = 5 * time.Minute
)

type userInfoFetcher interface {
	UserInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error)
}

type command struct {
	usage string
	help  string
	run   func(s *shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":            {"help", "List commands", (*shell).help},
		"login":           {"login", "Sign in with the browser", (*shell).login},
		"logout":          {"logout", "Sign out locally and at the identity provider", (*shell).logout},
		"refresh":         {"refresh", "Renew the access token", (*shell).refresh},
		"status":          {"status", "Show the session state", (*shell).status},
		"me":              {"me", "Show the signed in profile", (*shell).me},
		"userinfo":        {"userinfo", "Show the identity provider's claims", (*shell).userInfo},
		"update-profile":  {"update-profile first=.. last=.. [phone=..] [cook=..] [image=..]", "Update the profile", (*shell).updateProfile},
		"addresses":       {"addresses", "List saved addresses", (*shell).addresses},
		"address":         {"address <id>", "Show one address", (*shell).address},
		"address-add":     {"address-add street=.. city=.. postal=.. [apt=..] [country=..] [label=..] [default=true]", "Save a new address", (*shell).addAddress},
		"address-update":  {"address-update <id> [street=..] [city=..] [postal=..] [apt=..] [country=..] [label=..]", "Change an address", (*shell).updateAddress},
		"address-default": {"address-default <id>", "Make an address the default", (*shell).setDefaultAddress},
		"address-delete":  {"address-delete <id>", "Delete an address", (*shell).deleteAddress},
		"default-address": {"default-address <auth0-id>", "Look up another user's default address", (*shell).defaultAddressOf},
	}
}

type shell struct {
	session  *sessions.Controller
	users    *users.Client
	store    credentials.Store
	identity userInfoFetcher
	in       io.Reader
	out      io.Writer
}

func newShell(a *app, in io.Reader, out io.Writer) *shell {
	return &shell{
		session:  a.session,
		users:    a.users,
		store:    a.store,
		identity: a.provider,
		in:       in,
		out:      out,
	}
}

// run reads commands until quit, end of input or ctx is done
func (s *shell) run(ctx context.Context) error {
	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	fmt.Fprintln(s.out, "Type help for a list of commands")
	for {
		fmt.Fprint(s.out, prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			args, err := splitArgs(line)
			if err != nil {
				s.printError(err)
				continue
			}
			if len(args) == 0 {
				continue
			}
			if args[0] == "quit" || args[0] == "exit" {
				return nil
			}
			if err := s.execute(ctx, args); err != nil {
				s.printError(err)
			}
		}
	}
}

func (s *shell) execute(ctx context.Context, args []string) error {
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command %q, type help", args[0])
	}
	return cmd.run(s, ctx, args[1:])
}

func (s *shell) printError(err error) {
	var validation *users.ValidationError
	if apperrors.As(err, &validation) {
		fmt.Fprintln(s.out, "Invalid request:")
		for _, f := range validation.Fields {
			fmt.Fprintf(s.out, "  %s: %s\n", f.Field, f.Message)
		}
		return
	}
	fmt.Fprintf(s.out, "Error: %s\n", apiclient.ErrorMessage(err))
	var apiErr *apiclient.Error
	if apperrors.As(err, &apiErr) {
		for _, f := range apiErr.ValidationErrors {
			fmt.Fprintf(s.out, "  %s: %s\n", f.Field, f.Message)
		}
	}
}

func (s *shell) help(context.Context, []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.out, "  %-16s %s\n", name, commands[name].help)
		if commands[name].usage != name {
			fmt.Fprintf(s.out, "  %-16s   %s\n", "", commands[name].usage)
		}
	}
	fmt.Fprintf(s.out, "  %-16s %s\n", "quit", "Leave the client")
	return nil
}

func (s *shell) login(ctx context.Context, _ []string) error {
	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	fmt.Fprintln(s.out, "Opening the browser to sign in...")
	if err := s.session.Login(ctx); err != nil {
		if apperrors.Is(err, apperrors.ErrLoginCancelled) {
			fmt.Fprintln(s.out, "Login cancelled")
			return nil
		}
		return err
	}
	state := s.session.State()
	if state.User == nil {
		return fmt.Errorf("%w: the session ended right after sign in", apperrors.ErrUnauthorized)
	}
	fmt.Fprintf(s.out, "Signed in as %s\n", state.User.DisplayName())
	return nil
}

func (s *shell) logout(ctx context.Context, _ []string) error {
	s.session.Logout(ctx)
	fmt.Fprintln(s.out, "Signed out")
	return nil
}

func (s *shell) refresh(ctx context.Context, _ []string) error {
	if err := s.session.RefreshToken(ctx); err != nil {
		return err
	}
	return s.status(ctx, nil)
}

func (s *shell) status(context.Context, []string) error {
	state := s.session.State()
	switch state.Phase {
	case sessions.SignedIn:
		fmt.Fprintf(s.out, "Signed in as %s (%s)\n", state.User.DisplayName(), state.User.Email)
		if expires := state.Credential.ExpiresAt; !expires.IsZero() {
			fmt.Fprintf(s.out, "Access token expires %s\n", humanize.Time(expires))
		}
		if !state.Credential.HasRefreshToken() {
			fmt.Fprintln(s.out, "No refresh token, sign in again when the token expires")
		}
	case sessions.Failed:
		fmt.Fprintf(s.out, "Sign in failed: %s\n", state.Message)
	default:
		fmt.Fprintln(s.out, strings.ToUpper(state.Phase.String()[:1])+state.Phase.String()[1:])
	}
	return nil
}

// signedIn refreshes a credential close to expiry and returns the session user
func (s *shell) signedIn(ctx context.Context) (*users.User, error) {
	if err := s.session.EnsureFresh(ctx); err != nil && !apperrors.Is(err, apperrors.ErrNoRefreshToken) {
		return nil, err
	}
	user := s.session.User()
	if user == nil {
		return nil, fmt.Errorf("%w: sign in first", apperrors.ErrUnauthorized)
	}
	return user, nil
}

func (s *shell) me(ctx context.Context, _ []string) error {
	if _, err := s.signedIn(ctx); err != nil {
		return err
	}
	user, err := s.users.GetCurrentUser(ctx)
	if err != nil {
		return err
	}
	s.printUser(user)
	return nil
}

func (s *shell) printUser(user *users.User) {
	fmt.Fprintf(s.out, "%s <%s>\n", user.DisplayName(), user.Email)
	fmt.Fprintf(s.out, "  id:       %d\n", user.ID)
	fmt.Fprintf(s.out, "  role:     %s\n", user.Role)
	fmt.Fprintf(s.out, "  status:   %s\n", user.Status)
	fmt.Fprintf(s.out, "  verified: %t\n", user.IsVerified)
	if user.PhoneNumber != "" {
		fmt.Fprintf(s.out, "  phone:    %s\n", user.PhoneNumber)
	}
	if user.IsCook() {
		fmt.Fprintf(s.out, "  orders:   %s\n", humanize.Comma(int64(utils.Value(user.TotalOrders))))
		if user.AverageRating != nil {
			fmt.Fprintf(s.out, "  rating:   %.1f\n", *user.AverageRating)
		}
		if user.CookDescription != "" {
			fmt.Fprintf(s.out, "  about:    %s\n", user.CookDescription)
		}
	}
	if address := user.DefaultAddress(); address != nil {
		fmt.Fprintf(s.out, "  address:  %s\n", address.FullAddress)
	}
}

func (s *shell) userInfo(ctx context.Context, _ []string) error {
	if _, err := s.signedIn(ctx); err != nil {
		return err
	}
	credential := s.store.Get()
	if credential == nil {
		return fmt.Errorf("%w: sign in first", apperrors.ErrUnauthorized)
	}
	info, err := s.identity.UserInfo(ctx, credential.AccessToken)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "subject:  %s\n", info.Subject)
	fmt.Fprintf(s.out, "email:    %s (verified: %t)\n", info.Email, info.EmailVerified)
	fmt.Fprintf(s.out, "profile:  %s\n", info.Profile)
	return nil
}

func (s *shell) updateProfile(ctx context.Context, args []string) error {
	user, err := s.signedIn(ctx)
	if err != nil {
		return err
	}
	values, err := keyValues(args, "first", "last", "phone", "cook", "image")
	if err != nil {
		return err
	}

	req := users.UpdateUserRequest{
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		PhoneNumber:     user.PhoneNumber,
		CookDescription: user.CookDescription,
		ProfileImageURL: user.ProfileImageURL,
	}
	setIfPresent(values, "first", &req.FirstName)
	setIfPresent(values, "last", &req.LastName)
	setIfPresent(values, "phone", &req.PhoneNumber)
	setIfPresent(values, "cook", &req.CookDescription)
	setIfPresent(values, "image", &req.ProfileImageURL)

	updated, err := s.session.UpdateProfile(ctx, req)
	if err != nil {
		return err
	}
	s.printUser(updated)
	return nil
}

func (s *shell) addresses(ctx context.Context, _ []string) error {
	user, err := s.signedIn(ctx)
	if err != nil {
		return err
	}
	addresses, err := s.users.ListAddresses(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		fmt.Fprintln(s.out, "No saved addresses")
		return nil
	}
	for i := range addresses {
		s.printAddress(&addresses[i])
	}
	return nil
}

func (s *shell) printAddress(address *users.Address) {
	marker := " "
	if address.IsDefault {
		marker = "*"
	}
	label := address.Label
	if label == "" {
		label = "-"
	}
	fmt.Fprintf(s.out, "%s %4d  %-10s %s\n", marker, address.ID, label, address.FullAddress)
}

func (s *shell) address(ctx context.Context, args []string) error {
	user, err := s.signedIn(ctx)
	if err != nil {
		return err
	}
	id, err := parseID(args)
	if err != nil {
		return err
	}
	address, err := s.users.GetAddress(ctx, user.ID, id)
	if err != nil {
		return err
	}
	s.printAddress(address)
	return nil
}

func (s *shell) addAddress(ctx context.Context, args []string) error {
	user, err := s.signedIn(ctx)
	if err != nil {
		return err
	}
	values, err := keyValues(args, "street", "city", "postal", "apt", "country", "label", "default")
	if err != nil {
		return err
	}

	req := users.CreateAddressRequest{
		Street:          values["street"],
		City:            values["city"],
		PostalCode:      values["postal"],
		ApartmentNumber: values["apt"],
		Country:         values["country"],
		Label:           values["label"],
	}
	if v, ok := values["default"]; ok {
		isDefault, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("default must be true or false")
		}
		req.IsDefault = utils.Ptr(isDefault)
	}

	address, err := s.users.CreateAddress(ctx, user.ID, req)
	if err != nil {
		return err
	}
	s.printAddress(address)
	return nil
}

func (s *shell) updateAddress(ctx context.Context, args []string) error {
	user, err := s.signedIn(ctx)
	if err != nil {
		return err
	}
	id, err := parseID(args)
	if err != nil {
		return err
	}
	values, err := keyValues(args[1:], "street", "city", "postal", "apt", "country", "label")
	if err != nil {
		return err
	}

	var req users.UpdateAddressRequest
	fields := map[string]**string{
		"street":  &req.Street,
		"city":    &req.City,
		"postal":  &req.PostalCode,
		"apt":     &req.ApartmentNumber,
		"country": &req.Country,
		"label":   &req.Label,
	}
	for key, value := range values {
		*fields[key] = utils.Ptr(value)
	}

	address, err := s.users.UpdateAddress(ctx, user.ID, id, req)
	if err != nil {
		return err
	}
	s.printAddress(address)
	return nil
}

func (s *shell) setDefaultAddress(ctx context.Context, args []string) error {
	user, err := s.signedIn(ctx)
	if err != nil {
		return err
	}
	id, err := parseID(args)
	if err != nil {
		return err
	}
	address, err := s.users.SetDefaultAddress(ctx, user.ID, id)
	if err != nil {
		return err
	}
	s.printAddress(address)
	return nil
}

func (s *shell) deleteAddress(ctx context.Context, args []string) error {
	user, err := s.signedIn(ctx)
	if err != nil {
		return err
	}
	id, err := parseID(args)
	if err != nil {
		return err
	}
	if err := s.users.DeleteAddress(ctx, user.ID, id); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Deleted address %d\n", id)
	return nil
}

func (s *shell) defaultAddressOf(ctx context.Context, args []string) error {
	if _, err := s.signedIn(ctx); err != nil {
		return err
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", commands["default-address"].usage)
	}
	address, err := s.users.GetDefaultAddressByAuth0ID(ctx, args[0])
	if err != nil {
		return err
	}
	s.printAddress(address)
	return nil
}

func parseID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("missing address id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid address id %q", args[0])
	}
	return id, nil
}

// keyValues parses key=value arguments, rejecting keys not in allowed
func keyValues(args []string, allowed ...string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		valid := false
		for _, a := range allowed {
			if key == a {
				valid = true
				break
			}
		}
		if !valid {
			return nil, fmt.Errorf("unknown field %q, expected one of %s", key, strings.Join(allowed, ", "))
		}
		values[key] = value
	}
	return values, nil
}

func setIfPresent(values map[string]string, key string, target *string) {
	if v, ok := values[key]; ok {
		*target = v
	}
}

// splitArgs splits a line on spaces. Double quotes group words and are
// removed, so street="Nowy Świat 5" is one argument.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case (r == ' ' || r == '\t') && !quoted:
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, errors.New("unterminated quote")
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}
