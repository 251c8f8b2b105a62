package usersfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/flavory-client/users"
)

const timestampLayout = "2006-01-02T15:04:05.000"

// Request is a call the fake API received
type Request struct {
	Method        string
	Path          string
	Authorization string
}

// API is an in-memory Flavory user service. It answers with the same
// envelopes and error bodies as the real one and authenticates callers by
// bearer token.
type API struct {
	lock          sync.RWMutex
	users         map[int64]*users.User
	addresses     map[int64]map[int64]*users.Address // user id to address id
	tokens        map[string]int64                   // access token to user id
	nextAddressID int64
	requests      []Request
	nowFunc       func() time.Time
}

func New() *API {
	return &API{
		users:         make(map[int64]*users.User),
		addresses:     make(map[int64]map[int64]*users.Address),
		tokens:        make(map[string]int64),
		nextAddressID: 1,
		nowFunc:       time.Now,
	}
}

// AddUser stores user and lets each of accessTokens act as them
func (a *API) AddUser(user users.User, accessTokens ...string) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if user.FullName == "" {
		user.FullName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	if user.Role == "" {
		user.Role = users.RoleCustomer
	}
	if user.Status == "" {
		user.Status = users.StatusActive
	}
	a.users[user.ID] = &user
	for _, token := range accessTokens {
		a.tokens[token] = user.ID
	}
}

// GrantToken lets token act as userID
func (a *API) GrantToken(token string, userID int64) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.tokens[token] = userID
}

// RevokeToken makes every later request carrying token fail with 401
func (a *API) RevokeToken(token string) {
	a.lock.Lock()
	defer a.lock.Unlock()
	delete(a.tokens, token)
}

func (a *API) User(id int64) (users.User, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	u, ok := a.users[id]
	if !ok {
		return users.User{}, false
	}
	return *u, true
}

// Requests returns the calls received so far
func (a *API) Requests() []Request {
	a.lock.RLock()
	defer a.lock.RUnlock()
	return append([]Request(nil), a.requests...)
}

// CountRequests counts received calls matching method and path
func (a *API) CountRequests(method, path string) int {
	n := 0
	for _, r := range a.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me", a.authenticated(a.getCurrentUser))
	mux.HandleFunc("GET /users/{id}", a.authenticated(a.owner(a.getUser)))
	mux.HandleFunc("PUT /users/{id}", a.authenticated(a.owner(a.updateUser)))
	mux.HandleFunc("DELETE /users/{id}", a.authenticated(a.owner(a.deleteUser)))
	mux.HandleFunc("GET /users/{id}/addresses", a.authenticated(a.owner(a.listAddresses)))
	mux.HandleFunc("POST /users/{id}/addresses", a.authenticated(a.owner(a.createAddress)))
	mux.HandleFunc("GET /users/{id}/addresses/{addressId}", a.authenticated(a.owner(a.getAddress)))
	mux.HandleFunc("PUT /users/{id}/addresses/{addressId}", a.authenticated(a.owner(a.updateAddress)))
	mux.HandleFunc("DELETE /users/{id}/addresses/{addressId}", a.authenticated(a.owner(a.deleteAddress)))
	mux.HandleFunc("PATCH /users/{id}/addresses/{addressId}/default", a.authenticated(a.owner(a.setDefaultAddress)))

	byAuth0 := a.authenticated(a.defaultAddressByAuth0ID)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.lock.Lock()
		a.requests = append(a.requests, Request{Method: r.Method, Path: r.URL.Path, Authorization: r.Header.Get("Authorization")})
		a.lock.Unlock()

		// Registered apart from the mux, its pattern overlaps the address routes
		if rest, ok := strings.CutPrefix(r.URL.Path, "/users/by-auth0/"); ok && r.Method == http.MethodGet {
			if auth0ID, ok := strings.CutSuffix(rest, "/default"); ok {
				r.SetPathValue("auth0Id", auth0ID)
				byAuth0(w, r)
				return
			}
		}
		mux.ServeHTTP(w, r)
	})
}

type callerHandler func(w http.ResponseWriter, r *http.Request, caller *users.User)

func (a *API) authenticated(next callerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		a.lock.RLock()
		userID, known := a.tokens[token]
		caller, exists := a.users[userID]
		a.lock.RUnlock()

		if !ok || !known || !exists {
			a.writeError(w, r, http.StatusUnauthorized, "AUTH_3001", "Invalid token")
			return
		}
		next(w, r, caller)
	}
}

// owner only lets callers touch their own resources, admins excepted
func (a *API) owner(next callerHandler) callerHandler {
	return func(w http.ResponseWriter, r *http.Request, caller *users.User) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			a.writeError(w, r, http.StatusBadRequest, "VALIDATION_4001", "Invalid user id")
			return
		}
		if caller.ID != id && caller.Role != users.RoleAdmin {
			a.writeError(w, r, http.StatusForbidden, "USER_1003", "No permissions for this use")
			return
		}
		next(w, r, caller)
	}
}

func (a *API) getCurrentUser(w http.ResponseWriter, r *http.Request, caller *users.User) {
	a.lock.RLock()
	user := a.withAddresses(caller)
	a.lock.RUnlock()
	a.writeData(w, http.StatusOK, "", user)
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request, _ *users.User) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	user, ok := a.users[pathID(r, "id")]
	if !ok {
		a.writeError(w, r, http.StatusNotFound, "USER_1001", "User not found")
		return
	}
	a.writeData(w, http.StatusOK, "", a.withAddresses(user))
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, _ *users.User) {
	var req users.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "VALIDATION_4001", "Data validation failed")
		return
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	user, ok := a.users[pathID(r, "id")]
	if !ok {
		a.writeError(w, r, http.StatusNotFound, "USER_1001", "User not found")
		return
	}
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.FullName = strings.TrimSpace(req.FirstName + " " + req.LastName)
	user.PhoneNumber = req.PhoneNumber
	user.CookDescription = req.CookDescription
	user.ProfileImageURL = req.ProfileImageURL
	user.UpdatedAt = a.timestamp()
	a.writeData(w, http.StatusOK, "User updated", a.withAddresses(user))
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, _ *users.User) {
	a.lock.Lock()
	defer a.lock.Unlock()
	id := pathID(r, "id")
	if _, ok := a.users[id]; !ok {
		a.writeError(w, r, http.StatusNotFound, "USER_1001", "User not found")
		return
	}
	delete(a.users, id)
	delete(a.addresses, id)
	a.writeData(w, http.StatusOK, "User deleted", nil)
}

func (a *API) listAddresses(w http.ResponseWriter, r *http.Request, _ *users.User) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	a.writeData(w, http.StatusOK, "", a.sortedAddresses(pathID(r, "id")))
}

func (a *API) getAddress(w http.ResponseWriter, r *http.Request, _ *users.User) {
	a.lock.RLock()
	defer a.lock.RUnlock()
	address, ok := a.addresses[pathID(r, "id")][pathID(r, "addressId")]
	if !ok {
		a.writeError(w, r, http.StatusNotFound, "ADDRESS_2001", "Address not found")
		return
	}
	a.writeData(w, http.StatusOK, "", address)
}

func (a *API) createAddress(w http.ResponseWriter, r *http.Request, _ *users.User) {
	var req users.CreateAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "VALIDATION_4001", "Data validation failed")
		return
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	userID := pathID(r, "id")
	if a.addresses[userID] == nil {
		a.addresses[userID] = make(map[int64]*users.Address)
	}

	address := &users.Address{
		ID:              a.nextAddressID,
		Street:          req.Street,
		City:            req.City,
		PostalCode:      req.PostalCode,
		ApartmentNumber: req.ApartmentNumber,
		Country:         req.Country,
		Label:           req.Label,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		CreatedAt:       a.timestamp(),
	}
	a.nextAddressID++
	if address.Country == "" {
		address.Country = "Poland"
	}
	address.FullAddress = fullAddress(address)
	a.addresses[userID][address.ID] = address

	if len(a.addresses[userID]) == 1 || (req.IsDefault != nil && *req.IsDefault) {
		a.makeDefault(userID, address.ID)
	}
	a.writeData(w, http.StatusCreated, "Address created", address)
}

func (a *API) updateAddress(w http.ResponseWriter, r *http.Request, _ *users.User) {
	var req users.UpdateAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "VALIDATION_4001", "Data validation failed")
		return
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	userID, addressID := pathID(r, "id"), pathID(r, "addressId")
	address, ok := a.addresses[userID][addressID]
	if !ok {
		a.writeError(w, r, http.StatusNotFound, "ADDRESS_2001", "Address not found")
		return
	}

	setIf(&address.Street, req.Street)
	setIf(&address.City, req.City)
	setIf(&address.PostalCode, req.PostalCode)
	setIf(&address.ApartmentNumber, req.ApartmentNumber)
	setIf(&address.Country, req.Country)
	setIf(&address.Label, req.Label)
	if req.Latitude != nil {
		address.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		address.Longitude = req.Longitude
	}
	address.FullAddress = fullAddress(address)
	if req.IsDefault != nil && *req.IsDefault {
		a.makeDefault(userID, addressID)
	}
	a.writeData(w, http.StatusOK, "Address updated", address)
}

func (a *API) setDefaultAddress(w http.ResponseWriter, r *http.Request, _ *users.User) {
	a.lock.Lock()
	defer a.lock.Unlock()
	userID, addressID := pathID(r, "id"), pathID(r, "addressId")
	address, ok := a.addresses[userID][addressID]
	if !ok {
		a.writeError(w, r, http.StatusNotFound, "ADDRESS_2001", "Address not found")
		return
	}
	a.makeDefault(userID, addressID)
	a.writeData(w, http.StatusOK, "Default address set", address)
}

func (a *API) deleteAddress(w http.ResponseWriter, r *http.Request, _ *users.User) {
	a.lock.Lock()
	defer a.lock.Unlock()
	userID, addressID := pathID(r, "id"), pathID(r, "addressId")
	if _, ok := a.addresses[userID][addressID]; !ok {
		a.writeError(w, r, http.StatusNotFound, "ADDRESS_2001", "Address not found")
		return
	}
	delete(a.addresses[userID], addressID)
	a.writeData(w, http.StatusOK, "Address deleted", nil)
}

func (a *API) defaultAddressByAuth0ID(w http.ResponseWriter, r *http.Request, _ *users.User) {
	auth0ID := r.PathValue("auth0Id")
	a.lock.RLock()
	defer a.lock.RUnlock()
	for _, user := range a.users {
		if user.Auth0ID != auth0ID {
			continue
		}
		for _, address := range a.addresses[user.ID] {
			if address.IsDefault {
				writeJSON(w, http.StatusOK, address)
				return
			}
		}
	}
	a.writeError(w, r, http.StatusNotFound, "ADDRESS_2001", "Address not found")
}

// makeDefault must be called with the write lock held
func (a *API) makeDefault(userID, addressID int64) {
	for id, address := range a.addresses[userID] {
		address.IsDefault = id == addressID
	}
}

// withAddresses must be called with the lock held
func (a *API) withAddresses(user *users.User) users.User {
	u := *user
	u.Addresses = a.sortedAddresses(user.ID)
	return u
}

func (a *API) sortedAddresses(userID int64) []users.Address {
	list := make([]users.Address, 0, len(a.addresses[userID]))
	for _, address := range a.addresses[userID] {
		list = append(list, *address)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (a *API) timestamp() string {
	return a.nowFunc().Format(timestampLayout)
}

func (a *API) writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, map[string]any{
		"success":   true,
		"message":   message,
		"data":      data,
		"timestamp": a.timestamp(),
	})
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"timestamp": a.timestamp(),
		"status":    status,
		"error":     http.StatusText(status),
		"errorCode": code,
		"message":   message,
		"path":      "/api" + r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id
}

func setIf(field *string, value *string) {
	if value != nil {
		*field = *value
	}
}

func fullAddress(a *users.Address) string {
	street := a.Street
	if a.ApartmentNumber != "" {
		street = fmt.Sprintf("%s/%s", street, a.ApartmentNumber)
	}
	return fmt.Sprintf("%s, %s %s, %s", street, a.PostalCode, a.City, a.Country)
}
