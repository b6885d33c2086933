// Copyright 2023 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrorCode type for codes of errors
type ErrorCode int

// constants with error codes
const (
	_ ErrorCode = iota
	Fail
	BadConfig
	BadArgument
	NoActiveDirection
	TooManyCEs
	AllocErr
	FailToInitPort
	LinkDownErr
	TSCSyncErr
	SetAffinityErr
	SendTimeExceeded
	InvalidFrameID
	NoCEArray
	BadSocket
)

// TesterError is error type returned by maptperf functions
type TesterError struct {
	Code     ErrorCode
	Message  string
	CauseErr error
}

type causer interface {
	Cause() error
}

// Error method to implement error interface
func (err TesterError) Error() string {
	return fmt.Sprintf("%s (%d)", err.Message, err.Code)
}

// GetTesterErrorCode returns value of the Code field if err is
// TesterError or pointer to it and -1 otherwise.
func GetTesterErrorCode(err error) ErrorCode {
	if terr := GetTesterError(err); terr != nil {
		return terr.Code
	}
	return -1
}

func checkAndGetTesterErrPointer(err error) *TesterError {
	if err != nil {
		if terr, ok := err.(TesterError); ok {
			return &terr
		} else if terr, ok := err.(*TesterError); ok {
			return terr
		}
	}
	return nil
}

// GetTesterError if error is TesterError or pointer to it
// returns pointer to TesterError, otherwise returns nil.
func GetTesterError(err error) (terr *TesterError) {
	terr = checkAndGetTesterErrPointer(err)
	if terr == nil {
		if cause, ok := err.(causer); ok {
			terr = checkAndGetTesterErrPointer(cause.Cause())
		}
	}
	return terr
}

// Cause returns the underlying cause of error, if
// possible. If not, returns err itself.
func (err *TesterError) Cause() error {
	if err == nil {
		return nil
	}
	if err.CauseErr != nil {
		if cause, ok := err.CauseErr.(causer); ok {
			return cause.Cause()
		}
		return err.CauseErr
	}
	return err
}

// Format makes formatted printing of errors,
// the following verbs are supported:
// %s, %v print the error. If the error has a
// Cause it will be printed recursively
// %+v - extended format. Each Frame of the error's
// StackTrace will be printed in detail if possible.
func (err *TesterError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			if cause := err.Cause(); cause != err && cause != nil {
				fmt.Fprintf(s, "%+v\n", err.Cause())
				io.WriteString(s, err.Message)
				return
			}
		}
		fallthrough
	case 's', 'q':
		io.WriteString(s, err.Error())
	}
}

// WrapWithTesterError returns an error annotating err with a stack trace
// at the point WrapWithTesterError is called, and the next our TesterError.
// The result is never nil: a nil err yields a TesterError without a cause.
func WrapWithTesterError(err error, message string, code ErrorCode) error {
	err = &TesterError{
		CauseErr: err,
		Message:  message,
		Code:     code,
	}
	return errors.WithStack(err)
}
