package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OperationError records which step failed and for which request.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MarshalLogObject lets zap.Object render the error as structured fields.
func (e *OperationError) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("operation", e.Operation)
	if e.RequestID != "" {
		enc.AddString("request_id", e.RequestID)
	}
	if e.Err != nil {
		enc.AddString("cause", e.Err.Error())
	}
	return nil
}

// NewOperationError wraps err; a nil err stays nil.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// ErrorFields returns the error plus the innermost operation metadata found in its
// chain, so a log line names the step that actually failed.
func ErrorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var innermost *OperationError
	for cur := err; ; {
		var opErr *OperationError
		if !errors.As(cur, &opErr) {
			break
		}
		innermost = opErr
		cur = opErr.Err
	}
	if innermost != nil {
		fields = append(fields, zap.String("failed_operation", innermost.Operation))
		if innermost.RequestID != "" {
			fields = append(fields, zap.String("failed_request_id", innermost.RequestID))
		}
	}
	return fields
}
