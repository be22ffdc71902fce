package flexijoin

import "errors"

var (
	errNotInterval = errors.New("accessor result does not implement Interval")
	errUnknownOp   = errors.New("unknown Op")
)
