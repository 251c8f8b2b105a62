package users

import (
	"strings"
)

// Role is the marketplace role of a user
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleCook     Role = "COOK"
	RoleAdmin    Role = "ADMIN"
)

// Status is the account state of a user
type Status string

const (
	StatusActive              Status = "ACTIVE"
	StatusInactive            Status = "INACTIVE"
	StatusSuspended           Status = "SUSPENDED"
	StatusPendingVerification Status = "PENDING_VERIFICATION"
)

// User is the marketplace profile of the signed in person. Timestamps are
// kept as sent by the API, which omits the zone.
type User struct {
	ID              int64     `json:"id"`
	Auth0ID         string    `json:"auth0Id,omitempty"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	FullName        string    `json:"fullName"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	ProfileImageURL string    `json:"profileImageUrl,omitempty"`
	Role            Role      `json:"role"`
	Status          Status    `json:"status"`
	CookDescription string    `json:"cookDescription,omitempty"`
	AverageRating   *float64  `json:"averageRating,omitempty"`
	TotalOrders     *int      `json:"totalOrders,omitempty"`
	IsVerified      bool      `json:"isVerified"`
	Addresses       []Address `json:"addresses,omitempty"`
	CreatedAt       string    `json:"createdAt,omitempty"`
	UpdatedAt       string    `json:"updatedAt,omitempty"`
}

func (u *User) IsCook() bool {
	return u.Role == RoleCook
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// DefaultAddress returns the default address embedded in the profile, if any
func (u *User) DefaultAddress() *Address {
	for i := range u.Addresses {
		if u.Addresses[i].IsDefault {
			return &u.Addresses[i]
		}
	}
	return nil
}

type Address struct {
	ID              int64    `json:"id"`
	Street          string   `json:"street"`
	City            string   `json:"city"`
	PostalCode      string   `json:"postalCode"`
	ApartmentNumber string   `json:"apartmentNumber,omitempty"`
	Country         string   `json:"country"`
	FullAddress     string   `json:"fullAddress"`
	IsDefault       bool     `json:"isDefault"`
	Label           string   `json:"label,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	PhoneNumber     string   `json:"phoneNumber,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
}

type UpdateUserRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	CookDescription string `json:"cookDescription,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

type CreateAddressRequest struct {
	Street          string   `json:"street"`
	City            string   `json:"city"`
	PostalCode      string   `json:"postalCode"`
	ApartmentNumber string   `json:"apartmentNumber,omitempty"`
	Country         string   `json:"country,omitempty"`
	IsDefault       *bool    `json:"isDefault,omitempty"`
	Label           string   `json:"label,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
}

// UpdateAddressRequest changes only the fields that are set
type UpdateAddressRequest struct {
	Street          *string  `json:"street,omitempty"`
	City            *string  `json:"city,omitempty"`
	PostalCode      *string  `json:"postalCode,omitempty"`
	ApartmentNumber *string  `json:"apartmentNumber,omitempty"`
	Country         *string  `json:"country,omitempty"`
	IsDefault       *bool    `json:"isDefault,omitempty"`
	Label           *string  `json:"label,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
}
