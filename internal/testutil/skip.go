// Package testutil provides testing utilities.
package testutil

import (
	"os"
	"testing"
)

// SkipWithoutFirestoreEmulator skips the test if FIRESTORE_EMULATOR_HOST is
// not set. Use this for tests that talk to a real Firestore.
//
// Run them with: FIRESTORE_EMULATOR_HOST=localhost:8080 go test ./...
func SkipWithoutFirestoreEmulator(t *testing.T) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("Skipping Firestore test (set FIRESTORE_EMULATOR_HOST to run)")
	}
}
