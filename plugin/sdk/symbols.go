package sdk

import (
	"reflect"
)

// ImportPath is where plugin sources import this package from.
const ImportPath = "go.polydawn.net/pkgrun/plugin/sdk"

/*
	Symbols exposes this package to the interpreter, in the same shape
	as the interpreter's own stdlib symbol tables.
*/
var Symbols = map[string]map[string]reflect.Value{
	ImportPath + "/sdk": {
		"Status": reflect.ValueOf((*Status)(nil)),
		"Result": reflect.ValueOf((*Result)(nil)),
		"Task":   reflect.ValueOf((*Task)(nil)),

		"StatusSuccess": reflect.ValueOf(StatusSuccess),
		"StatusFailure": reflect.ValueOf(StatusFailure),
		"StatusSkipped": reflect.ValueOf(StatusSkipped),

		"Success": reflect.ValueOf(Success),
		"Failure": reflect.ValueOf(Failure),
		"Skipped": reflect.ValueOf(Skipped),
	},
}
