package trading

import "fmt"

// Category is the failure taxonomy every error response is reported under.
type Category int

const (
	InternalError Category = iota
	InvalidField
	MissingCredential
	InvalidCredential
	UpstreamBlocked
	AuthenticationFailed
	InsufficientBalance
	UpstreamAPIError
)

var categoryNames = map[Category]string{
	InternalError:        "InternalError",
	InvalidField:         "InvalidField",
	MissingCredential:    "MissingCredential",
	InvalidCredential:    "InvalidCredential",
	UpstreamBlocked:      "UpstreamBlocked",
	AuthenticationFailed: "AuthenticationFailed",
	InsufficientBalance:  "InsufficientBalance",
	UpstreamAPIError:     "UpstreamApiError",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// FieldError is a request problem found before any network call.
type FieldError struct {
	Category Category // InvalidField, MissingCredential or InvalidCredential
	Field    string
	Message  string
}

func (e *FieldError) Error() string {
	return e.Message
}

func invalidField(field, message string) *FieldError {
	return &FieldError{Category: InvalidField, Field: field, Message: message}
}

func missingCredential(field, message string) *FieldError {
	return &FieldError{Category: MissingCredential, Field: field, Message: message}
}

func invalidCredential(field, message string) *FieldError {
	return &FieldError{Category: InvalidCredential, Field: field, Message: message}
}
