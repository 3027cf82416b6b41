package ws

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileParam is a file sent as a multipart form part named Name.
type FileParam struct {
	Path string
	Name string
}

// FileParamsFromPaths names each file after the base name of its path.
func FileParamsFromPaths(paths ...string) []FileParam {
	params := make([]FileParam, len(paths))
	for i, path := range paths {
		params[i] = FileParam{Path: path, Name: filepath.Base(path)}
	}
	return params
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// buildMultipart writes one part per file followed by one UTF-8 text part
// per parameter value.
func buildMultipart(files []FileParam, fields url.Values) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, fp := range files {
		if err := writeFilePart(writer, fp); err != nil {
			return nil, "", err
		}
	}

	for _, key := range sortedKeys(fields) {
		for _, value := range fields[key] {
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(key)))
			header.Set("Content-Type", "text/plain; charset=utf-8")
			part, err := writer.CreatePart(header)
			if err != nil {
				return nil, "", err
			}
			if _, err := io.WriteString(part, value); err != nil {
				return nil, "", err
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return body, writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, fp FileParam) error {
	file, err := os.Open(fp.Path)
	if err != nil {
		return fmt.Errorf("error opening file parameter %q: %w", fp.Name, err)
	}
	defer file.Close()

	filename := filepath.Base(fp.Path)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(fp.Name), quoteEscaper.Replace(filename)))
	header.Set("Content-Type", mimeTypeOf(filename))

	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("error reading file parameter %q: %w", fp.Name, err)
	}
	return nil
}

// mimeTypeOf guesses a content type from the file extension.
func mimeTypeOf(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
