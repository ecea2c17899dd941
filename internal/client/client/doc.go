// Package client talks to the StaffKeeper server for the CLI.
//
// # Overview
//
// The Client interface is the contract the CLI works against. GRPCClient
// implements it over one gRPC connection: it drives the login conversation,
// keeps the access token of the current session and attaches it to every
// call through a unary interceptor.
//
// # Error Handling
//
// Server errors come back as the typed errors of package common
// (CredentialError, LockedError, AuthorizationError, ValidationError,
// GovernanceConflictError) or the sentinels ErrorNotFound and
// ErrDuplicateLogin. Transport conditions map to ErrUnavailable,
// ErrUnauthorized and ErrRateLimited.
package client
