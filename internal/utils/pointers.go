package utils

// Value dereferences v, returning the zero value for nil pointers.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// Ptr returns a pointer to a copy of v. Used for optional request fields.
func Ptr[T any](v T) *T {
	return &v
}
