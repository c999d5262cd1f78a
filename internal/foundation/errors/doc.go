// Package errors provides the classified error type used across pagebuild.
//
// Every failure that reaches the command surface is a ClassifiedError carrying a
// category (config, transform, clean, server, filesystem ...), a severity and
// structured context such as the failing path. The CLI adapter turns categories
// into exit codes; the HTTP adapter turns them into status codes for the dev server.
//
// Example usage:
//
//	err := errors.TransformError("style compilation failed").
//		WithContext("path", rec.Path).
//		WithCause(cause).
//		Build()
package errors
