package testutil

import "errors"

// ErrSimulated is a sentinel error for failing fakes and stores in tests.
var ErrSimulated = errors.New("simulated error for testing")
