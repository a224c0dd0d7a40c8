// Package errors defines error types for the ioprocess client.
//
// This package provides structured error types that wrap the different failure
// scenarios of talking to an ioprocess worker. All error types support
// error unwrapping and can be checked using errors.Is, errors.As, and errors.AsType.
package errors
