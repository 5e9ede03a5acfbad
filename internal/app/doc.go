// Package app wires the license gate into a runnable application and
// manages its lifecycle.
//
// # Initialization Flow
//
//	1. Logging and OpenTelemetry from configuration
//	2. Encrypted state store
//	3. License server client, hardware fingerprinting and the gate
//	4. WebSocket hub backing the license window
//	5. Router, middleware and HTTP server
//
// # Usage
//
//	a, err := app.New(cfg)
//	if err != nil {
//	    return err
//	}
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	return a.Run(ctx)
//
// Run checks the persisted license first and only opens the license window
// when no valid license exists. It returns an error when the window closes
// without a valid license, and otherwise serves until ctx is cancelled.
//
// The app never calls os.Exit; errors are returned to the caller.
package app
