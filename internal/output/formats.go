package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/ws/ws"
)

// OutputFormat represents the available output formats
type OutputFormat string

const (
	// FormatText is the default human-readable text format
	FormatText OutputFormat = "text"
	// FormatJSON outputs in JSON format
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs in YAML format
	FormatYAML OutputFormat = "yaml"
)

// ParseFormat validates a format name given on the command line.
func ParseFormat(name string) (OutputFormat, error) {
	switch f := OutputFormat(name); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", name)
}

// FormatProvider is an interface for different output formatters
type FormatProvider interface {
	FormatRequest(req RequestData) string
	FormatResponse(resp *ws.Response) (string, error)
}

// RequestData represents the structured data of an outgoing request
type RequestData struct {
	Method    string              `json:"method" yaml:"method"`
	URL       string              `json:"url" yaml:"url"`
	Headers   map[string]string   `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params    map[string][]string `json:"params,omitempty" yaml:"params,omitempty"`
	Files     []string            `json:"files,omitempty" yaml:"files,omitempty"`
	MimeType  string              `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Body      string              `json:"body,omitempty" yaml:"body,omitempty"`
	Timestamp string              `json:"timestamp" yaml:"timestamp"`
}

// NewRequestData describes req as it will be sent with method.
func NewRequestData(method string, req *ws.Request) RequestData {
	data := RequestData{
		Method:    method,
		URL:       req.URL,
		Headers:   req.Headers,
		MimeType:  req.MimeType,
		Body:      string(req.Body),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if len(req.Parameters) > 0 {
		data.Params = make(map[string][]string, len(req.Parameters))
		for key, value := range req.Parameters {
			data.Params[key] = paramStrings(value)
		}
	}
	for _, f := range req.FileParams {
		data.Files = append(data.Files, f.Name+"="+f.Path)
	}

	return data
}

func paramStrings(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case string:
		return []string{v}
	}
	return []string{fmt.Sprint(value)}
}

// TimingData breaks the response time into connection phases
type TimingData struct {
	DNSLookup       int64 `json:"dnsLookupMs,omitempty" yaml:"dnsLookupMs,omitempty"`
	TCPConnection   int64 `json:"tcpConnectionMs,omitempty" yaml:"tcpConnectionMs,omitempty"`
	TLSHandshake    int64 `json:"tlsHandshakeMs,omitempty" yaml:"tlsHandshakeMs,omitempty"`
	TimeToFirstByte int64 `json:"timeToFirstByteMs,omitempty" yaml:"timeToFirstByteMs,omitempty"`
	ConnReused      bool  `json:"connReused" yaml:"connReused"`
	Total           int64 `json:"totalMs" yaml:"totalMs"`
}

// ResponseData represents the structured data of an HTTP response
type ResponseData struct {
	StatusCode    int               `json:"statusCode" yaml:"statusCode"`
	Status        string            `json:"status" yaml:"status"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body          any               `json:"body,omitempty" yaml:"body,omitempty"`
	ResponseTime  int64             `json:"responseTimeMs" yaml:"responseTimeMs"`
	Timing        TimingData        `json:"timing" yaml:"timing"`
	ContentLength int64             `json:"contentLength,omitempty" yaml:"contentLength,omitempty"`
	Timestamp     string            `json:"timestamp" yaml:"timestamp"`
}

// NewResponseData reads resp and describes it. JSON bodies are embedded as
// values, anything else as a string.
func NewResponseData(resp *ws.Response) (ResponseData, error) {
	raw, err := resp.Bytes()
	if err != nil {
		return ResponseData{}, err
	}

	headers := make(map[string]string)
	for key, values := range resp.Headers() {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	var body any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body = string(raw)
		}
	}

	data := ResponseData{
		StatusCode:   resp.Status(),
		Status:       resp.StatusText(),
		Headers:      headers,
		Body:         body,
		ResponseTime: resp.Duration().Milliseconds(),
		Timing:       newTimingData(resp.Timing()),
		Timestamp:    time.Now().Format(time.RFC3339),
	}

	if length, err := strconv.ParseInt(resp.Header("Content-Length"), 10, 64); err == nil {
		data.ContentLength = length
	}

	return data, nil
}

func newTimingData(t ws.Timing) TimingData {
	return TimingData{
		DNSLookup:       t.DNSLookup.Milliseconds(),
		TCPConnection:   t.TCPConnect.Milliseconds(),
		TLSHandshake:    t.TLSHandshake.Milliseconds(),
		TimeToFirstByte: t.TimeToFirstByte.Milliseconds(),
		ConnReused:      t.ConnReused,
		Total:           t.Total.Milliseconds(),
	}
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	Pretty bool
}

// FormatRequest formats a request as JSON
func (f *JSONFormatter) FormatRequest(req RequestData) string {
	return f.marshal(req, "request")
}

// FormatResponse formats a response as JSON
func (f *JSONFormatter) FormatResponse(resp *ws.Response) (string, error) {
	data, err := NewResponseData(resp)
	if err != nil {
		return "", err
	}
	return f.marshal(data, "response"), nil
}

func (f *JSONFormatter) marshal(v any, what string) string {
	var (
		output []byte
		err    error
	)
	if f.Pretty {
		output, err = json.MarshalIndent(v, "", "  ")
	} else {
		output, err = json.Marshal(v)
	}

	if err != nil {
		return fmt.Sprintf(`{"error":"Failed to marshal %s: %s"}`, what, err)
	}
	return string(output) + "\n"
}

// YAMLFormatter formats output as YAML documents
type YAMLFormatter struct{}

// FormatRequest formats a request as YAML
func (f *YAMLFormatter) FormatRequest(req RequestData) string {
	return marshalYAML(req, "request")
}

// FormatResponse formats a response as YAML
func (f *YAMLFormatter) FormatResponse(resp *ws.Response) (string, error) {
	data, err := NewResponseData(resp)
	if err != nil {
		return "", err
	}
	return marshalYAML(data, "response"), nil
}

func marshalYAML(v any, what string) string {
	output, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("---\nerror: Failed to marshal %s: %s\n", what, err)
	}
	return "---\n" + string(output)
}

// GetFormatter returns the formatter for the given output format
func GetFormatter(format OutputFormat, verbose bool, noColor bool) FormatProvider {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return NewFormatter(verbose, noColor)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
