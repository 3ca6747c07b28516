package classifier

import (
	"errors"
	"fmt"
)

// GenericFailureMessage is shown when the endpoint gives no usable error message.
const GenericFailureMessage = "Terjadi kesalahan saat memproses gambar."

// ErrMalformedResponse is returned when a success response cannot be decoded.
var ErrMalformedResponse = errors.New("classifier: malformed response body")

// RemoteError is a failed exchange with the classifier endpoint. StatusCode is zero
// when no HTTP response was received.
type RemoteError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = GenericFailureMessage
	}
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("classifier: status %d: %s", e.StatusCode, msg)
	case e.Err != nil:
		return fmt.Sprintf("classifier: %s: %v", msg, e.Err)
	default:
		return "classifier: " + msg
	}
}

// Unwrap returns the transport or decoding error, if any.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// UserMessage extracts the message to show for a failed classification: the server's
// own message when it sent one, otherwise GenericFailureMessage.
func UserMessage(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return GenericFailureMessage
}
