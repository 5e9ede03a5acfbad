// Package shared holds code used across packages that belongs to no single
// domain layer.
//
// The testutil subpackage provides the test helpers: a log capturing slog
// handler and a scriptable fake of the remote license service.
package shared
