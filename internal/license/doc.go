// Package license implements the license gate: a stable hardware identity,
// activation and validation against a remote license server, the persisted
// license status and the license window that collects a key from the user.
//
// A Gate moves through the states UNKNOWN, ACTIVATING, VALID, VALIDATING,
// INVALID and EXPIRED. Server round trips are serialized. Every check
// reports progress to the open license window as license-checking,
// license-result and license-error notifications.
package license
