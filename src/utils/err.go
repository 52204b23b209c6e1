package utils

import (
	"errors"
	"fmt"
)

// CheckErr runs the callbacks and panics when err is not nil. Pair it with a
// deferred HandlePanic.
func CheckErr(err error, callbacks ...func(err error)) {
	if err != nil {
		for _, fn := range callbacks {
			fn(err)
		}
		panic(err)
	}
}

func HandlePanic(fns ...func(err error)) {
	if pa := recover(); pa != nil {
		var err error
		switch v := pa.(type) {
		case error:
			err = v
		case string:
			err = errors.New(v)
		default:
			err = fmt.Errorf("%v", pa)
		}
		for _, fn := range fns {
			fn(err)
		}
	}
}
