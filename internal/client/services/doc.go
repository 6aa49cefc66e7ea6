// Package services contains the application services behind the CLI
// screens: the per-device session, the server-side conversion history and
// access to a finished conversion's result.
package services
