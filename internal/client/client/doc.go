// Package client is the boundary to the remote conversion service and to
// the local database.
//
// Client is the service contract; HTTPClient implements it over HTTP and
// returns *APIError for every failure. APIError carries one of the Code
// values, a user-facing Title and NextStep, the HTTP status and the raw
// cause. Callers match codes with errors.Is against the package sentinels
// (ErrNetwork, ErrTimeout, ErrFileTooLarge, ...); ErrNotFound matches 404.
//
// InitDatabase opens the sqlite store, applies the embedded goose
// migrations and returns the repositories built on it.
package client
