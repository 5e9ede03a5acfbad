// Command licensegate gates an application on a remotely validated license.
//
// Usage:
//
//	licensegate run               serve the license window and wait for a valid license
//	licensegate status            print the local license status as JSON
//	licensegate hwid              print this device's hardware ID
//	licensegate activate <key>    activate or re-validate a key without the window
//	licensegate reset             forget the saved license
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
