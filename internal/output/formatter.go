package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wesleyorama2/ws/ws"
)

// Formatter is responsible for formatting HTTP requests and responses in text format
type Formatter struct {
	Verbose bool
	NoColor bool
	colors  *ColorScheme
}

// NewFormatter creates a new formatter with the given options
func NewFormatter(verbose, noColor bool) *Formatter {
	return &Formatter{
		Verbose: verbose,
		NoColor: noColor,
		colors:  schemeFor(noColor),
	}
}

// FormatRequest formats a request for display
func (f *Formatter) FormatRequest(req RequestData) string {
	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("▶ REQUEST: %s %s\n",
		f.colors.Method.Sprint(req.Method),
		f.colors.URL.Sprint(req.URL)))

	if len(req.Headers) > 0 {
		f.writeLabel(&buf, "Headers:\n")
		for _, key := range sortedKeys(req.Headers) {
			f.writeHeader(&buf, key, req.Headers[key])
		}
	}

	if len(req.Params) > 0 {
		f.writeLabel(&buf, "Params:\n")
		for _, key := range sortedKeys(req.Params) {
			for _, value := range req.Params[key] {
				buf.WriteString(fmt.Sprintf("    %s=%s\n", key, value))
			}
		}
	}

	for _, file := range req.Files {
		f.writeLabel(&buf, "File: ")
		buf.WriteString(file + "\n")
	}

	if req.Body != "" {
		f.writeLabel(&buf, "Body: ")
		buf.WriteString(formatJSONString(req.Body))
		buf.WriteString("\n")
	}

	return buf.String()
}

// FormatResponse formats an HTTP response for display. The body is read,
// which releases the connection.
func (f *Formatter) FormatResponse(resp *ws.Response) (string, error) {
	body, err := resp.String()
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	buf.WriteString(fmt.Sprintf("◀ RESPONSE: %s (%dms)\n",
		f.colors.Status(resp.Status()).Sprint(resp.StatusText()),
		resp.Duration().Milliseconds()))

	if f.Verbose {
		timing := resp.Timing()
		f.writeLabel(&buf, "Timing:\n")
		buf.WriteString(fmt.Sprintf("    DNS Lookup:         %dms\n", timing.DNSLookup.Milliseconds()))
		buf.WriteString(fmt.Sprintf("    TCP Connection:     %dms\n", timing.TCPConnect.Milliseconds()))
		buf.WriteString(fmt.Sprintf("    TLS Handshake:      %dms\n", timing.TLSHandshake.Milliseconds()))
		buf.WriteString(fmt.Sprintf("    Time to First Byte: %dms\n", timing.TimeToFirstByte.Milliseconds()))
		buf.WriteString(fmt.Sprintf("    Connection Reused:  %t\n", timing.ConnReused))

		f.writeLabel(&buf, "Headers:\n")
		headers := resp.Headers()
		for _, key := range sortedKeys(headers) {
			for _, value := range headers[key] {
				f.writeHeader(&buf, key, value)
			}
		}
	}

	if body != "" {
		f.writeLabel(&buf, "Body:\n")
		buf.WriteString(formatJSONString(body))
		buf.WriteString("\n")
	}

	return buf.String(), nil
}

func (f *Formatter) writeLabel(buf *strings.Builder, label string) {
	buf.WriteString("  ")
	buf.WriteString(f.colors.Label.Sprint(label))
}

func (f *Formatter) writeHeader(buf *strings.Builder, key, value string) {
	buf.WriteString(fmt.Sprintf("    %s: %s\n",
		f.colors.HeaderKey.Sprint(key),
		f.colors.HeaderValue.Sprint(value)))
}

// formatJSONString attempts to pretty-print a JSON string
func formatJSONString(s string) string {
	var prettyJSON bytes.Buffer
	err := json.Indent(&prettyJSON, []byte(s), "  ", "  ")
	if err != nil {
		return s
	}
	return prettyJSON.String()
}
