// Package common defines shared constants and sentinel errors used across
// PhotoFlow components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Credential errors (required fields missing from the auth blob).
	ErrInvalidCredential = errors.New("invalid credential")

	// Malformed outbound request data.
	ErrInvalidRequest = errors.New("invalid request")

	// Device-auth handshake failures.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Upload protocol failures (token, raw upload, commit).
	ErrUploadFailed = errors.New("upload failed")

	// Transport-level failures.
	ErrNetworkError = errors.New("network error")
)
