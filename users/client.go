package users

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/flavory-client/querycache"
)

// API sends requests to the Flavory API; *apiclient.Client implements it
type API interface {
	Do(ctx context.Context, method, path string, in, out any) error
	DoRaw(ctx context.Context, method, path string, in, out any) error
}

// Client is the typed client for the user and address endpoints. Reads are
// served from the query cache while fresh and writes keep it consistent.
type Client struct {
	api   API
	cache *querycache.Cache
}

func NewClient(api API, cache *querycache.Cache) *Client {
	if cache == nil {
		cache = querycache.New()
	}
	return &Client{api: api, cache: cache}
}

// Cache returns the query cache backing this client
func (c *Client) Cache() *querycache.Cache {
	return c.cache
}

// GetCurrentUser fetches the profile of the authenticated caller
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	user, err := querycache.Fetch(ctx, c.cache, querycache.KeyCurrentUser, querycache.UserTTL, func(ctx context.Context) (User, error) {
		var user User
		if err := c.api.Do(ctx, http.MethodGet, "/users/me", nil, &user); err != nil {
			return User{}, fmt.Errorf("[users GetCurrentUser] %w", err)
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}
	c.cache.Set(querycache.UserKey(user.ID), user, querycache.UserTTL)
	return &user, nil
}

func (c *Client) GetUser(ctx context.Context, id int64) (*User, error) {
	user, err := querycache.Fetch(ctx, c.cache, querycache.UserKey(id), querycache.UserTTL, func(ctx context.Context) (User, error) {
		var user User
		if err := c.api.Do(ctx, http.MethodGet, fmt.Sprintf("/users/%d", id), nil, &user); err != nil {
			return User{}, fmt.Errorf("[users GetUser] %w", err)
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser replaces the profile and the cached copies of it
func (c *Client) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("[users UpdateUser] %w", err)
	}

	var user User
	if err := c.api.Do(ctx, http.MethodPut, fmt.Sprintf("/users/%d", id), req, &user); err != nil {
		return nil, fmt.Errorf("[users UpdateUser] %w", err)
	}

	c.cache.Set(querycache.UserKey(id), user, querycache.UserTTL)
	if current, ok := querycache.Lookup[User](c.cache, querycache.KeyCurrentUser); ok && current.ID == id {
		c.cache.Set(querycache.KeyCurrentUser, user, querycache.UserTTL)
	}
	return &user, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	if err := c.api.Do(ctx, http.MethodDelete, fmt.Sprintf("/users/%d", id), nil, nil); err != nil {
		return fmt.Errorf("[users DeleteUser] %w", err)
	}

	c.cache.DeletePrefix(querycache.UserKey(id))
	if current, ok := querycache.Lookup[User](c.cache, querycache.KeyCurrentUser); ok && current.ID == id {
		c.cache.Delete(querycache.KeyCurrentUser)
	}
	return nil
}

func (c *Client) ListAddresses(ctx context.Context, userID int64) ([]Address, error) {
	addresses, err := querycache.Fetch(ctx, c.cache, querycache.AddressesKey(userID), querycache.AddressesTTL, func(ctx context.Context) ([]Address, error) {
		var addresses []Address
		if err := c.api.Do(ctx, http.MethodGet, fmt.Sprintf("/users/%d/addresses", userID), nil, &addresses); err != nil {
			return nil, fmt.Errorf("[users ListAddresses] %w", err)
		}
		return addresses, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]Address(nil), addresses...), nil
}

func (c *Client) GetAddress(ctx context.Context, userID, addressID int64) (*Address, error) {
	address, err := querycache.Fetch(ctx, c.cache, querycache.AddressKey(userID, addressID), querycache.AddressesTTL, func(ctx context.Context) (Address, error) {
		var address Address
		if err := c.api.Do(ctx, http.MethodGet, fmt.Sprintf("/users/%d/addresses/%d", userID, addressID), nil, &address); err != nil {
			return Address{}, fmt.Errorf("[users GetAddress] %w", err)
		}
		return address, nil
	})
	if err != nil {
		return nil, err
	}
	return &address, nil
}

func (c *Client) CreateAddress(ctx context.Context, userID int64, req CreateAddressRequest) (*Address, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("[users CreateAddress] %w", err)
	}

	var address Address
	if err := c.api.Do(ctx, http.MethodPost, fmt.Sprintf("/users/%d/addresses", userID), req, &address); err != nil {
		return nil, fmt.Errorf("[users CreateAddress] %w", err)
	}
	c.invalidateAddresses(userID)
	return &address, nil
}

func (c *Client) UpdateAddress(ctx context.Context, userID, addressID int64, req UpdateAddressRequest) (*Address, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("[users UpdateAddress] %w", err)
	}

	var address Address
	if err := c.api.Do(ctx, http.MethodPut, fmt.Sprintf("/users/%d/addresses/%d", userID, addressID), req, &address); err != nil {
		return nil, fmt.Errorf("[users UpdateAddress] %w", err)
	}
	c.invalidateAddresses(userID)
	return &address, nil
}

func (c *Client) SetDefaultAddress(ctx context.Context, userID, addressID int64) (*Address, error) {
	var address Address
	if err := c.api.Do(ctx, http.MethodPatch, fmt.Sprintf("/users/%d/addresses/%d/default", userID, addressID), nil, &address); err != nil {
		return nil, fmt.Errorf("[users SetDefaultAddress] %w", err)
	}
	c.invalidateAddresses(userID)
	return &address, nil
}

func (c *Client) DeleteAddress(ctx context.Context, userID, addressID int64) error {
	if err := c.api.Do(ctx, http.MethodDelete, fmt.Sprintf("/users/%d/addresses/%d", userID, addressID), nil, nil); err != nil {
		return fmt.Errorf("[users DeleteAddress] %w", err)
	}
	c.invalidateAddresses(userID)
	return nil
}

// GetDefaultAddressByAuth0ID looks up a user's default address by identity
// provider subject. The endpoint answers without the response envelope.
func (c *Client) GetDefaultAddressByAuth0ID(ctx context.Context, auth0ID string) (*Address, error) {
	var address Address
	path := fmt.Sprintf("/users/by-auth0/%s/default", url.PathEscape(auth0ID))
	if err := c.api.DoRaw(ctx, http.MethodGet, path, nil, &address); err != nil {
		return nil, fmt.Errorf("[users GetDefaultAddressByAuth0ID] %w", err)
	}
	return &address, nil
}

// invalidateAddresses drops the list and every single address of userID.
// A default change touches more than one entry, so all of them go.
func (c *Client) invalidateAddresses(userID int64) {
	c.cache.DeletePrefix(querycache.AddressesKey(userID))
}
