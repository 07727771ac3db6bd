package common

import (
	"errors"
	"fmt"
)

// Notice is an error meant to be shown to the user as a transient message.
// Store and feed failures are wrapped into a Notice at the operation
// boundary; anything that is not a Notice is an internal error.
type Notice struct {
	Message string
	Err     error
}

func (n *Notice) Error() string {
	if n.Err != nil {
		return fmt.Sprintf("%s: %v", n.Message, n.Err)
	}
	return n.Message
}

func (n *Notice) Unwrap() error {
	return n.Err
}

// NewNotice builds a user-visible error with no underlying cause,
// used for local precondition violations that never reach the store.
func NewNotice(message string) error {
	return &Notice{Message: message}
}

// WrapNotice attaches a user-visible message to a store error.
func WrapNotice(message string, err error) error {
	if err == nil {
		return nil
	}
	return &Notice{Message: message, Err: err}
}

// AsNotice reports whether err carries a user-visible message and returns it.
func AsNotice(err error) (*Notice, bool) {
	var n *Notice
	if errors.As(err, &n) {
		return n, true
	}
	return nil, false
}
