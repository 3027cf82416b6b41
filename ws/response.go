package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html/charset"

	"github.com/wesleyorama2/ws/internal/connpool"
)

// Response wraps an HTTP response whose body still holds a pooled
// connection. Reading the body through Bytes, String, XML or JSON releases
// the connection; Stream hands the body to the caller, who releases it by
// closing the stream. Release can always be called directly.
//
// A Response is not safe for concurrent use.
type Response struct {
	raw      *http.Response
	lease    *connpool.Lease
	session  *Session
	timing   Timing

	body []byte
	read bool

	releaseOnce sync.Once
}

// Status returns the HTTP status code (e.g., 200, 404, 500).
func (r *Response) Status() int {
	return r.raw.StatusCode
}

// StatusText returns the HTTP status line text (e.g., "200 OK").
func (r *Response) StatusText() string {
	return r.raw.Status
}

// ContentType returns the Content-Type header of the response.
func (r *Response) ContentType() string {
	return r.raw.Header.Get("Content-Type")
}

// Header returns the value of the specified header.
// Returns an empty string if the header is not present.
func (r *Response) Header(key string) string {
	return r.raw.Header.Get(key)
}

// Headers returns all response headers.
func (r *Response) Headers() http.Header {
	return r.raw.Header
}

// Duration is the time from sending the request to receiving the headers.
func (r *Response) Duration() time.Duration {
	return r.timing.Total
}

// Timing returns the connection phases of the request.
func (r *Response) Timing() Timing {
	return r.timing
}

// Bytes returns the response body and releases the connection.
// The body is cached, so this method can be called multiple times.
func (r *Response) Bytes() ([]byte, error) {
	if r.read {
		return r.body, nil
	}
	defer r.Release()

	body, err := io.ReadAll(r.raw.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	r.body = body
	r.read = true
	return body, nil
}

// String returns the response body as a string and releases the connection.
func (r *Response) String() (string, error) {
	body, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Stream returns the response body. Closing it releases the connection.
// If the body has already been read, the stream replays the cached bytes.
func (r *Response) Stream() io.ReadCloser {
	if r.read {
		return io.NopCloser(bytes.NewReader(r.body))
	}
	return &releasingReader{ReadCloser: r.raw.Body, resp: r}
}

type releasingReader struct {
	io.ReadCloser
	resp *Response
}

func (rr *releasingReader) Close() error {
	defer rr.resp.Release()
	return rr.ReadCloser.Close()
}

// XML parses the response body as an XML document and releases the
// connection. A non UTF-8 encoding declared in the document is honored.
func (r *Response) XML() (*etree.Document, error) {
	body, err := r.Bytes()
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}
	if doc.Root() == nil {
		return nil, ErrInvalidXML
	}
	return doc, nil
}

// XMLWithEncoding decodes the response body from the given charset, then
// parses it as an XML document, ignoring any declared encoding.
func (r *Response) XMLWithEncoding(encoding string) (*etree.Document, error) {
	body, err := r.Bytes()
	if err != nil {
		return nil, err
	}

	reader, err := charset.NewReaderLabel(encoding, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error decoding XML as %s: %w", encoding, err)
	}

	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if _, err := doc.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}
	if doc.Root() == nil {
		return nil, ErrInvalidXML
	}
	return doc, nil
}

// JSON parses the response body as a JSON element and releases the
// connection.
//
// Example:
//
//	doc, err := resp.JSON()
//	if err != nil {
//	    return err
//	}
//	name := doc.Get("users.0.name").String()
func (r *Response) JSON() (gjson.Result, error) {
	body, err := r.Bytes()
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, ErrInvalidJSON
	}
	return gjson.ParseBytes(body), nil
}

// JSONInto unmarshals the response body into v.
func (r *Response) JSONInto(v any) error {
	body, err := r.Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return nil
}

// JSONPath extracts a value with a JSONPath expression such as
// $.users[0].name.
func (r *Response) JSONPath(expr string) (gjson.Result, error) {
	doc, err := r.JSON()
	if err != nil {
		return gjson.Result{}, err
	}

	if expr == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}

	result := doc.Get(gjsonPath(expr))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("path not found: %s", expr)
	}
	return result, nil
}

// gjsonPath converts the JSONPath subset used by callers (dots, numeric
// indexes and quoted member names) to gjson syntax.
func gjsonPath(expr string) string {
	path := strings.TrimPrefix(expr, "$")
	if path == "" {
		return "@this"
	}

	var b strings.Builder
	for i := 0; i < len(path); i++ {
		switch ch := path[i]; ch {
		case '.':
			if b.Len() > 0 {
				b.WriteByte('.')
			}
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end == -1 {
				b.WriteString(path[i:])
				return b.String()
			}
			member := strings.Trim(path[i+1:i+end], `'"`)
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(member)
			i += end
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// ValidateJSON checks the response body against a JSON Schema document.
// A body that does not satisfy the schema yields ErrSchemaMismatch.
func (r *Response) ValidateJSON(schema string) error {
	body, err := r.Bytes()
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schema)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

// Release returns the connection to the pool. Unread body bytes are
// discarded. Calling Release more than once is a no-op.
func (r *Response) Release() {
	r.releaseOnce.Do(func() {
		r.lease.Release()
		if r.session != nil {
			r.session.forget(r)
		}
	})
}

// IsSuccess returns true if the response status code is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.Status() >= 200 && r.Status() < 300
}

// IsRedirect returns true if the response status code is in the 3xx range.
func (r *Response) IsRedirect() bool {
	return r.Status() >= 300 && r.Status() < 400
}

// IsClientError returns true if the response status code is in the 4xx range.
func (r *Response) IsClientError() bool {
	return r.Status() >= 400 && r.Status() < 500
}

// IsServerError returns true if the response status code is in the 5xx range.
func (r *Response) IsServerError() bool {
	return r.Status() >= 500 && r.Status() < 600
}

// IsError returns true if the response status code indicates an error (4xx or 5xx).
func (r *Response) IsError() bool {
	return r.IsClientError() || r.IsServerError()
}

// drain discards a response that is about to be superseded.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
