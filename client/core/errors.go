// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package core

import (
	"errors"
	"fmt"

	"decred.org/multiswap/client/asset"
	"decred.org/multiswap/dex"
)

const (
	// ErrValidation is returned for malformed requests and restore data.
	// Nothing is applied when it is returned.
	ErrValidation = dex.ErrorKind("validation error")
	// ErrInsufficientFunds is returned when a wallet cannot fund the swaps
	// drawing on it.
	ErrInsufficientFunds = asset.ErrInsufficientFunds
	// ErrQuote is recorded when the provider will not quote or accept an
	// amount.
	ErrQuote = dex.ErrorKind("quote error")
	// ErrSigning wraps wallet signing errors.
	ErrSigning = dex.ErrorKind("signing error")
	// ErrSend wraps broadcast errors.
	ErrSend = dex.ErrorKind("send error")
	// ErrBlockedByNonce is recorded on swaps whose transaction was not sent
	// because an earlier transaction from the same account failed.
	ErrBlockedByNonce = dex.ErrorKind("blocked by failed send of an earlier transaction")
)

// Error codes for API consumers.
const (
	validationErr = iota
	unknownSwundleErr
	walletErr
	balanceErr
	signErr
	sendErr
	restoreErr
	dbErr
)

// Error is an error code and a wrapped error.
type Error struct {
	code int
	err  error
}

// Error returns the error string. Satisfies the error interface.
func (e *Error) Error() string {
	return e.err.Error()
}

// Code returns the error code.
func (e *Error) Code() *int {
	return &e.code
}

// Unwrap returns the underlying wrapped error.
func (e *Error) Unwrap() error {
	return e.err
}

// newError is a constructor for a new Error.
func newError(code int, s string, a ...any) error {
	return &Error{
		code: code,
		err:  fmt.Errorf(s, a...), // s may contain a %w verb to wrap an error
	}
}

// codedError converts the error to an Error with the specified code.
func codedError(code int, err error) error {
	return &Error{
		code: code,
		err:  err,
	}
}

// errorHasCode checks whether the error is an Error and has the specified code.
func errorHasCode(err error, code int) bool {
	var e *Error
	return errors.As(err, &e) && e.code == code
}

// ErrorCode is the API error code of err, or -1 if it has none.
func ErrorCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return -1
}

// UnknownSwundle is true if the error is for a swundle ID that is not known.
func UnknownSwundle(err error) bool {
	return ErrorCode(err) == unknownSwundleErr
}
