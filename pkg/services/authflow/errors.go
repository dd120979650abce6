package authflow

import "errors"

var (
	// ErrConfiguration marks a flow missing required fields (client id,
	// endpoints, redirect URL).
	ErrConfiguration = errors.New("flow configuration incomplete")

	// ErrRedirectParse marks a redirect URL that did not carry the expected
	// response parameters.
	ErrRedirectParse = errors.New("redirect URL could not be parsed")

	// ErrProviderNotFound is returned when a provider lookup by name fails
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNotAuthorized is returned when a token is requested for a provider
	// that has none stored.
	ErrNotAuthorized = errors.New("provider is not authorized")
)
