// Package http exposes the license gate over HTTP.
//
// Handlers stay thin: they decode and validate the request, call the
// LicenseService and render JSON. Failures are rendered as RFC 7807 problem
// documents through the shared error handler.
//
// Routes mounted under /api/license:
//
//	POST   /validate         submit a license key
//	GET    /status           persisted status and current state
//	GET    /saved            persisted license key
//	GET    /hardware-id      device fingerprint
//	GET    /activation-date  activation date of the persisted status
//	DELETE /                 forget the license
//	POST   /validated        confirm the license window may close
//	GET    /check            local validity check
//	GET    /state            current state
//	GET    /features         feature entitlements
//
// The license page itself is embedded and served by ServeLicensePage.
package http
