package devin

import "errors"

// ErrorKind classifies a failed session creation.
type ErrorKind string

const (
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindQuotaOrRateLimited   ErrorKind = "quota_or_rate_limited"
	KindServiceError         ErrorKind = "service_error"
	KindUnexpectedResponse   ErrorKind = "unexpected_response"
	KindMalformedResponse    ErrorKind = "malformed_response"
	KindTimeout              ErrorKind = "timeout"
	KindUnclassified         ErrorKind = "unclassified"
)

// DispatchError is the only error type CreateSession returns.
type DispatchError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	return e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// KindOf returns the dispatch kind of err, or KindUnclassified for foreign errors.
func KindOf(err error) ErrorKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnclassified
}

// IsTimeout reports whether err is an exhausted-retries timeout.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == KindTimeout
}
