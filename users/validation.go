package users

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jrsteele09/flavory-client/apiclient"
	apperrors "github.com/jrsteele09/flavory-client/internal/errors"
)

var (
	firstNamePattern = regexp.MustCompile(`^[a-zA-ZąćęłńóśźżĄĆĘŁŃÓŚŹŻ]+$`)
	lastNamePattern  = regexp.MustCompile(`^[a-zA-ZąćęłńóśźżĄĆĘŁŃÓŚŹŻ\-]+$`)
	postalPattern    = regexp.MustCompile(`^\d{2}-\d{3}$`)
	imageURLPattern  = regexp.MustCompile(`^(https?://).*\.(jpg|jpeg|png|gif|webp)$`)
	phonePattern     = regexp.MustCompile(`^(\+48)?[0-9]{9}$`)
)

// ValidationError lists the fields the API would reject a request for
type ValidationError struct {
	Fields []apiclient.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", apperrors.ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidation
}

type validator struct {
	fields []apiclient.FieldError
}

func (v *validator) add(field, message string) {
	v.fields = append(v.fields, apiclient.FieldError{Field: field, Message: message})
}

func (v *validator) required(field, value, message string) bool {
	if strings.TrimSpace(value) == "" {
		v.add(field, message)
		return false
	}
	return true
}

func (v *validator) maxLen(field, value string, limit int) {
	if utf8.RuneCountInString(value) > limit {
		v.add(field, fmt.Sprintf("must be at most %d characters", limit))
	}
}

func (v *validator) match(field, value string, pattern *regexp.Regexp, message string) {
	if value != "" && !pattern.MatchString(value) {
		v.add(field, message)
	}
}

func (v *validator) between(field string, value *float64, low, high float64) {
	if value != nil && (*value < low || *value > high) {
		v.add(field, fmt.Sprintf("must be between %g and %g", low, high))
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func (r UpdateUserRequest) Validate() error {
	v := &validator{}
	if v.required("firstName", r.FirstName, "First name is required") {
		if n := utf8.RuneCountInString(r.FirstName); n < 2 || n > 50 {
			v.add("firstName", "must be between 2 and 50 characters")
		}
		v.match("firstName", r.FirstName, firstNamePattern, "The name can only contain letters")
	}
	if v.required("lastName", r.LastName, "Last name is required") {
		if n := utf8.RuneCountInString(r.LastName); n < 2 || n > 50 {
			v.add("lastName", "must be between 2 and 50 characters")
		}
		v.match("lastName", r.LastName, lastNamePattern, "The surname can only contain letters and a dash")
	}
	v.match("phoneNumber", r.PhoneNumber, phonePattern, "Invalid phone number")
	v.maxLen("cookDescription", r.CookDescription, 1000)
	v.maxLen("profileImageUrl", r.ProfileImageURL, 500)
	v.match("profileImageUrl", r.ProfileImageURL, imageURLPattern, "Invalid image URL format")
	return v.err()
}

func (r CreateAddressRequest) Validate() error {
	v := &validator{}
	if v.required("street", r.Street, "Street address is required") {
		v.maxLen("street", r.Street, 200)
	}
	if v.required("city", r.City, "City is required") {
		v.maxLen("city", r.City, 100)
	}
	if v.required("postalCode", r.PostalCode, "Postal code is required") {
		v.match("postalCode", r.PostalCode, postalPattern, "Invalid postal code (format: XX-XXX)")
	}
	v.maxLen("apartmentNumber", r.ApartmentNumber, 20)
	v.maxLen("country", r.Country, 50)
	v.maxLen("label", r.Label, 50)
	v.between("latitude", r.Latitude, -90, 90)
	v.between("longitude", r.Longitude, -180, 180)
	return v.err()
}

func (r UpdateAddressRequest) Validate() error {
	v := &validator{}
	if r.Street != nil {
		v.maxLen("street", *r.Street, 200)
	}
	if r.City != nil {
		v.maxLen("city", *r.City, 100)
	}
	if r.PostalCode != nil && !postalPattern.MatchString(*r.PostalCode) {
		v.add("postalCode", "Invalid postal code (format: XX-XXX)")
	}
	if r.ApartmentNumber != nil {
		v.maxLen("apartmentNumber", *r.ApartmentNumber, 20)
	}
	if r.Country != nil {
		v.maxLen("country", *r.Country, 50)
	}
	if r.Label != nil {
		v.maxLen("label", *r.Label, 50)
	}
	v.between("latitude", r.Latitude, -90, 90)
	v.between("longitude", r.Longitude, -180, 180)
	return v.err()
}
