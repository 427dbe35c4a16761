package accounts

import "errors"

// Kind classifies why an operation failed
type Kind string

const (
	KindNone         Kind = ""
	KindValidation   Kind = "validation"
	KindTransport    Kind = "transport"
	KindDuplicate    Kind = "duplicate"
	KindPrecondition Kind = "precondition"
	KindRemote       Kind = "remote"
)

var (
	// ErrTransport marks failures to reach the remote host or read its answer
	ErrTransport = errors.New("remote host unreachable")
	// ErrUnresolvable marks an account name the hashing tool could not map to a path
	ErrUnresolvable = errors.New("account path could not be resolved")
)

// KindOf maps resolver errors onto a Kind
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindRemote
	}
}
