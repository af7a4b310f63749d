package session

import (
	"errors"
	"fmt"
)

var (
	ErrBusy              = errors.New("another operation is in progress")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrClosed            = errors.New("controller is not running")
)

func invalid(s State, t Trigger) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, t, s)
}

type ErrorCode string

const (
	CodeNone               ErrorCode = ""
	CodeDeviceUnavailable  ErrorCode = "device_unavailable"
	CodeSessionStartFailed ErrorCode = "session_start_failed"
	CodeToggleFailed       ErrorCode = "toggle_failed"
	CodeProcessFailed      ErrorCode = "process_failed"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

// Status is the line a UI shows under the camera view. Detail carries the
// bare error message when Level is LevelError.
type Status struct {
	Level  Level
	Text   string
	Detail string
	Code   ErrorCode
}

func info(text string) Status {
	return Status{Level: LevelInfo, Text: text}
}

func failure(code ErrorCode, prefix, detail string) Status {
	return Status{Level: LevelError, Text: prefix + detail, Detail: detail, Code: code}
}
