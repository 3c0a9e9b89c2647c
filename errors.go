package rates

import (
	"fmt"
	"strconv"
)

// TransportError a connectivity or status failure while talking to the service.
type TransportError struct {
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	msg := "transport error"
	if e.StatusCode != 0 {
		msg += " (status " + strconv.Itoa(e.StatusCode) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteQueryError the service rejected the query inside an otherwise successful envelope.
// Message is the first error reported.
type RemoteQueryError struct {
	Message string
}

func (e *RemoteQueryError) Error() string {
	return e.Message
}

// MalformedResponseError an expected field is missing from a successful envelope.
type MalformedResponseError struct {
	Field  string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e.Field == "" {
		return "malformed response: " + e.Reason
	}
	return fmt.Sprintf("malformed response: %s %s", e.Field, e.Reason)
}

// InvalidRateValueError folding a rate would produce a non-finite amount.
type InvalidRateValueError struct {
	Market  Market
	Value   float64
	Inverse bool
}

func (e *InvalidRateValueError) Error() string {
	return fmt.Sprintf("invalid rate value %v for market %v (inverse=%t)", e.Value, e.Market, e.Inverse)
}
