// Package testutil provides small hand-rolled assertion helpers, mirroring
// test_utils_test.go's AssertEqual/AssertError/AssertNoError rather than
// reaching for testify. The package tests in this module call t.Fatalf
// directly and do not import it.
package testutil

import "testing"

// AssertNoError fails the test if err is non-nil.
func AssertNoError(t *testing.T, err error, message string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", message, err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s - expected an error but got none", message)
	}
}

// AssertEqual fails the test if expected != actual.
func AssertEqual(t *testing.T, expected, actual interface{}, message string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s - expected: %v, got: %v", message, expected, actual)
	}
}
