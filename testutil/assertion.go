package testutil

import (
	"testing"

	. "github.com/warpfork/go-errcat"
)

// tl;dr:
//  - `Assert*` methods are Fatalf if failed;
//  - `Want*` methods are Errorf if failed.

type thunk func(string, ...interface{})

func AssertNoError(t *testing.T, err error) { t.Helper(); lambdaNoError(t.Fatalf, err) }
func WantNoError(t *testing.T, err error)   { t.Helper(); lambdaNoError(t.Errorf, err) }
func lambdaNoError(act thunk, err error) {
	if err != nil {
		act("unexpected error: %s", err)
	}
}

func AssertCategory(t *testing.T, err error, category interface{}) {
	t.Helper()
	lambdaCategory(t.Fatalf, err, category)
}
func WantCategory(t *testing.T, err error, category interface{}) {
	t.Helper()
	lambdaCategory(t.Errorf, err, category)
}
func lambdaCategory(act thunk, err error, category interface{}) {
	switch {
	case err == nil:
		act("expected error of category %q, got no error", category)
	case Category(err) != category:
		act("expected error of category %q, got %q (%s)", category, Category(err), err)
	}
}
