package protocol

import "errors"

var (
	ErrNotFinalizer       = errors.New("caller is not the finalizer")
	ErrRandomnessMismatch = errors.New("random value differs from oracle delivery")
	ErrRandomnessPending  = errors.New("oracle has not delivered randomness yet")
)
