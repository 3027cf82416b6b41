package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// Request describes a web service call. Use Client.URL or Client.URLf to
// create one and chain method calls to configure it, then execute it with
// one of the verb methods.
//
// At most one of Body and Parameters becomes the request entity; setting
// both fails at execution time with ErrBodyWithParams.
type Request struct {
	URL        string
	Body       []byte
	FileParams []FileParam
	Headers    map[string]string
	Parameters map[string]any
	MimeType   string

	client   *Client
	buildErr error
}

func newRequest(client *Client, rawURL string) *Request {
	return &Request{
		URL:     rawURL,
		Headers: make(map[string]string),
		client:  client,
	}
}

// WithMimeType sets the Content-Type of the request entity.
// Returns the Request to allow method chaining.
func (r *Request) WithMimeType(mimeType string) *Request {
	r.MimeType = mimeType
	return r
}

// WithFiles attaches files, each sent as a form part named after the base
// name of its path. Files can only be sent with POST, PUT or PATCH.
// Returns the Request to allow method chaining.
func (r *Request) WithFiles(paths ...string) *Request {
	r.FileParams = FileParamsFromPaths(paths...)
	return r
}

// WithFileParams attaches files under explicit form part names.
// Returns the Request to allow method chaining.
func (r *Request) WithFileParams(params ...FileParam) *Request {
	r.FileParams = params
	return r
}

// WithBody sets the raw body of the request. An empty string is still a body.
// Returns the Request to allow method chaining.
func (r *Request) WithBody(body string) *Request {
	r.Body = append([]byte{}, body...)
	return r
}

// WithJSON marshals v as the body and sets the mime type to application/json.
// A value that cannot be marshaled leaves the request unchanged and the
// error surfaces when the request is executed.
// Returns the Request to allow method chaining.
func (r *Request) WithJSON(v any) *Request {
	data, err := json.Marshal(v)
	if err != nil {
		r.buildErr = fmt.Errorf("error encoding JSON body: %w", err)
		return r
	}
	r.Body = data
	r.MimeType = "application/json"
	return r
}

// WithHeaders replaces the request headers.
// Returns the Request to allow method chaining.
func (r *Request) WithHeaders(headers map[string]string) *Request {
	r.Headers = make(map[string]string, len(headers))
	for key, value := range headers {
		r.Headers[key] = value
	}
	return r
}

// WithHeader adds a header to the request.
// Returns the Request to allow method chaining.
func (r *Request) WithHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// WithParams replaces the request parameters.
//
// For POST, PUT and PATCH the parameters are sent in the body, as
// application/x-www-form-urlencoded when alone or as multipart/form-data
// fields when files are attached. For any other method they are appended
// to the query string. Slice and array values produce one pair per element;
// nil values are skipped.
// Returns the Request to allow method chaining.
func (r *Request) WithParams(params map[string]any) *Request {
	r.Parameters = params
	return r
}

// WithParam adds a single parameter.
// Returns the Request to allow method chaining.
func (r *Request) WithParam(key string, value any) *Request {
	if r.Parameters == nil {
		r.Parameters = make(map[string]any)
	}
	r.Parameters[key] = value
	return r
}

// Get executes a GET request.
func (r *Request) Get(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodGet)
}

// Post executes a POST request.
func (r *Request) Post(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodPost)
}

// Put executes a PUT request.
func (r *Request) Put(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodPut)
}

// Patch executes a PATCH request.
func (r *Request) Patch(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodPatch)
}

// Delete executes a DELETE request.
func (r *Request) Delete(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodDelete)
}

// Options executes an OPTIONS request.
func (r *Request) Options(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodOptions)
}

// Head executes a HEAD request.
func (r *Request) Head(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodHead)
}

// Trace executes a TRACE request.
func (r *Request) Trace(ctx context.Context) (*Response, error) {
	return r.client.execute(ctx, r, http.MethodTrace)
}

// Do executes the request with an arbitrary method.
func (r *Request) Do(ctx context.Context, method string) (*Response, error) {
	return r.client.execute(ctx, r, strings.ToUpper(method))
}

// hasEntity reports whether method carries a request body.
func hasEntity(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func (r *Request) validate(method string) error {
	if r.buildErr != nil {
		return r.buildErr
	}
	if !hasEntity(method) {
		if len(r.FileParams) > 0 {
			return fmt.Errorf("%w: method %s", ErrFilesNotAllowed, method)
		}
		return nil
	}
	if r.Body != nil && (r.Parameters != nil || len(r.FileParams) > 0) {
		return ErrBodyWithParams
	}
	return nil
}

// Build constructs the http.Request for method.
// This is called internally by the verb methods but is exposed for
// advanced use cases such as signing or inspecting the outgoing request.
func (r *Request) Build(ctx context.Context, method string) (*http.Request, error) {
	if err := r.validate(method); err != nil {
		return nil, err
	}

	reqURL, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", r.URL, err)
	}

	var (
		body        io.Reader
		contentType string
	)

	switch {
	case !hasEntity(method):
		// the query written by the caller is kept byte for byte
		if encoded := r.values().Encode(); encoded != "" {
			if reqURL.RawQuery == "" {
				reqURL.RawQuery = encoded
			} else {
				reqURL.RawQuery += "&" + encoded
			}
		}
	case len(r.FileParams) > 0:
		buf, ct, err := buildMultipart(r.FileParams, r.values())
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case r.Parameters != nil:
		body = strings.NewReader(r.values().Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.Body != nil:
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, err
	}

	for key, value := range r.Headers {
		req.Header.Add(key, value)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.MimeType != "" && len(r.FileParams) == 0 {
		req.Header.Set("Content-Type", r.MimeType)
	}

	return req, nil
}

// values flattens Parameters into url.Values.
func (r *Request) values() url.Values {
	values := make(url.Values, len(r.Parameters))
	for key, value := range r.Parameters {
		for _, s := range flatten(value) {
			values.Add(key, s)
		}
	}
	return values
}

func flatten(value any) []string {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return nil
	}

	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []byte:
		return []string{string(v)}
	case fmt.Stringer:
		return []string{v.String()}
	}

	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []string{fmt.Sprint(rv.Interface())}
	}

	out := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if s, ok := scalar(rv.Index(i)); ok {
			out = append(out, s)
		}
	}
	return out
}

// scalar formats a single element, following pointers. Nil elements are
// skipped.
func scalar(v reflect.Value) (string, bool) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return "", false
		}
		if v.Kind() == reflect.Pointer {
			if s, ok := v.Interface().(fmt.Stringer); ok {
				return s.String(), true
			}
		}
		v = v.Elem()
	}
	return fmt.Sprint(v.Interface()), true
}

// sortedKeys returns the keys of values in a stable order.
func sortedKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
