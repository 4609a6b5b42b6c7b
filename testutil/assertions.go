package testutil

import (
	"fmt"
	"os"

	. "github.com/warpfork/go-errcat"
)

/*
	'actual' should be path; 'expected' may be empty (in which case it checks
	that anything with an inode exists) or a filemode (all bits will be
	asserted against -- permissions as well as the `os.ModeType` range).
*/
func ShouldBeFile(actual interface{}, expected ...interface{}) string {
	filename, ok := actual.(string)
	if !ok {
		return "You must provide a filename as the first argument to this assertion."
	}

	info, err := os.Stat(filename)
	if err != nil {
		// includes if os.IsNotExist(err)
		return err.Error()
	}

	switch len(expected) {
	case 0:
		return "" // not picky about mode?  okay, you pass already.
	case 1:
		mode, ok := expected[0].(os.FileMode)
		if !ok {
			return "You must provide a FileMode as the second argument to this assertion, if any."
		}
		if info.Mode() != mode {
			return fmt.Sprintf("Expected file to have mode %v but it had %v instead!", mode, info.Mode())
		}
		return ""
	default:
		return "You must provide zero or one parameters as expectations to this assertion."
	}
}

/*
	'actual' should be path.  Expects no file (or dir) at path.
*/
func ShouldBeNotFile(actual interface{}, expected ...interface{}) string {
	filename, ok := actual.(string)
	if !ok {
		return "You must provide a filename as the first argument to this assertion."
	}
	if len(expected) != 0 {
		return "You must provide zero parameters as expectations to this assertion."
	}

	info, err := os.Stat(filename)
	if err == nil {
		return fmt.Sprintf("Expected file not to exist but it had mode %v instead!", info.Mode()&os.ModeType)
	}
	if os.IsNotExist(err) {
		return ""
	}
	return err.Error()
}

/*
	'actual' should be an `error`; 'expected' should be an errcat category
	(usually an `api.ErrorCategory`).  Passes if the error carries exactly
	that category.
*/
func ShouldHaveCategory(actual interface{}, expected ...interface{}) string {
	if len(expected) != 1 {
		return "You must provide one error category as the expectation parameter to this assertion."
	}
	if actual == nil {
		return fmt.Sprintf("Expected error of category %q but it was nil!", expected[0])
	}
	err, ok := actual.(error)
	if !ok {
		return fmt.Sprintf("You must provide an `error` as the first argument to this assertion; got `%T`", actual)
	}
	if Category(err) == expected[0] {
		return ""
	}
	return fmt.Sprintf("Expected error of category %q but it had %q instead!  (Full message: %s)", expected[0], Category(err), err.Error())
}
