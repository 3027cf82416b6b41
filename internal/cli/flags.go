package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesleyorama2/ws/internal/output"
	"github.com/wesleyorama2/ws/ws"
)

// parseHeaders turns "Key: Value" arguments into a header map.
func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, header := range values {
		key, value, ok := strings.Cut(header, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Key: Value\"", header)
		}
		headers[http.CanonicalHeaderKey(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}

// parseParams turns "key=value" arguments into request parameters.
// A repeated key becomes a list.
func parseParams(values []string) (map[string]any, error) {
	params := make(map[string]any, len(values))
	for _, param := range values {
		key, value, ok := strings.Cut(param, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", param)
		}
		switch existing := params[key].(type) {
		case nil:
			params[key] = value
		case string:
			params[key] = []string{existing, value}
		case []string:
			params[key] = append(existing, value)
		}
	}
	return params, nil
}

// parseFiles turns "[name=]path" arguments into file parameters. Without a
// name the base name of the path is used.
func parseFiles(values []string) []ws.FileParam {
	files := make([]ws.FileParam, 0, len(values))
	for _, value := range values {
		name, path, ok := strings.Cut(value, "=")
		if !ok || name == "" || strings.ContainsAny(name, `/\`) {
			path = value
			name = filepath.Base(value)
		}
		files = append(files, ws.FileParam{Path: path, Name: name})
	}
	return files
}

// parseUser splits "user:password".
func parseUser(value string) (string, string, error) {
	user, password, ok := strings.Cut(value, ":")
	if !ok || user == "" {
		return "", "", fmt.Errorf("invalid credentials %q, want user:password", value)
	}
	return user, password, nil
}

// colorDisabled reports whether output written to w should be plain.
func colorDisabled(w io.Writer, noColor bool) bool {
	if noColor {
		return true
	}
	f, ok := w.(*os.File)
	return !ok || !output.IsTerminal(f)
}

// normalizeURL adds http:// to URLs given without a scheme.
func normalizeURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "http://" + raw
}
