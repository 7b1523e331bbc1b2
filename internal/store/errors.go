package store

import "errors"

var (
	// ErrClientNotFound indicates no client is registered under the given client_id
	ErrClientNotFound = errors.New("store: client not found")

	// ErrCodeNotFound indicates the authorization code does not exist
	ErrCodeNotFound = errors.New("store: authorization code not found")

	// ErrCodeAlreadyUsed indicates the authorization code was already redeemed
	ErrCodeAlreadyUsed = errors.New("store: authorization code already used")

	// ErrTokenNotFound indicates no token record matches the lookup key
	ErrTokenNotFound = errors.New("store: token not found")
)
