package ws

import "errors"

var (
	// ErrBodyWithParams is returned when a request carries both a raw body
	// and parameters (or files); only one of them can become the entity.
	ErrBodyWithParams = errors.New("request with parameters AND body is not supported")

	// ErrFilesNotAllowed is returned when files are attached to a method
	// that has no request entity.
	ErrFilesNotAllowed = errors.New("files can only be sent with POST, PUT or PATCH")

	// ErrInvalidScope is returned by Authenticate for a scope URL without a host.
	ErrInvalidScope = errors.New("invalid authentication scope")

	// ErrClientClosed is returned when executing through a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrInvalidJSON is returned when the response body is not valid JSON.
	ErrInvalidJSON = errors.New("response body is not valid JSON")

	// ErrInvalidXML is returned when the response body has no XML root element.
	ErrInvalidXML = errors.New("response body is not an XML document")

	// ErrSchemaMismatch is returned when the response body does not satisfy
	// a JSON Schema.
	ErrSchemaMismatch = errors.New("response body does not match schema")
)
