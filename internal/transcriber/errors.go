package transcriber

import "errors"

// FatalStreamError marks a backend error as terminal for the current
// session: the stream was deliberately cancelled, not lost, and must not
// trigger an automatic restart.
type FatalStreamError struct {
	Err error
}

func (e *FatalStreamError) Error() string {
	if e == nil || e.Err == nil {
		return "fatal stream error"
	}
	return e.Err.Error()
}

func (e *FatalStreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewFatalStreamError(err error) error {
	if err == nil {
		return nil
	}
	return &FatalStreamError{Err: err}
}

func IsFatalStreamError(err error) bool {
	var fatal *FatalStreamError
	return errors.As(err, &fatal)
}
