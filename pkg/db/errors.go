package db

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no entity is stored under the requested key.
	ErrNotFound = errors.New("not found")
	// ErrInternal hides a subsystem failure from the caller. The cause is
	// reported on the store's error channel.
	ErrInternal = errors.New("internal error")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// AuthReason says why a credential was refused.
type AuthReason uint8

const (
	AuthRequired AuthReason = iota + 1
	AuthInvalid
	AuthNotAllowed
)

func (r AuthReason) String() string {
	switch r {
	case AuthRequired:
		return "required"
	case AuthInvalid:
		return "invalid"
	case AuthNotAllowed:
		return "not_allowed"
	default:
		return "unknown"
	}
}

// AuthError is returned when the gate refuses an operation.
type AuthError struct {
	Reason AuthReason
	Perm   Permission
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s for %s", e.Reason, e.Perm)
}

// BadInputError is returned when an entity cannot be encoded.
type BadInputError struct {
	Field string
	Err   error
}

func (e *BadInputError) Error() string {
	return fmt.Sprintf("bad input: %s: %v", e.Field, e.Err)
}

func (e *BadInputError) Unwrap() error { return e.Err }

// IsAuth reports whether err is an AuthError with the given reason.
func IsAuth(err error, reason AuthReason) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Reason == reason
}

// Op names a store operation in error reports and metrics.
type Op string

const (
	OpAddUser        Op = "add_user"
	OpGetUser        Op = "get_user"
	OpSearchUsers    Op = "search_users"
	OpRemoveUser     Op = "remove_user"
	OpAddProject     Op = "add_project"
	OpGetProject     Op = "get_project"
	OpSearchProjects Op = "search_projects"
	OpRemoveProject  Op = "remove_project"
	OpGenerateKey    Op = "generate_key"
	OpEnsureAllowed  Op = "ensure_allowed"
)

// Subsystem names the component that failed.
type Subsystem string

const (
	SubsystemHeap   Subsystem = "heap"
	SubsystemIndex  Subsystem = "index"
	SubsystemAuth   Subsystem = "auth"
	SubsystemMirror Subsystem = "mirror"
	SubsystemCodec  Subsystem = "codec"
)

// InternalError is the detailed report behind an ErrInternal result.
type InternalError struct {
	Op        Op
	Subsystem Subsystem
	Err       error
}

func (e InternalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Subsystem, e.Err)
}

func (e InternalError) Unwrap() error { return e.Err }
