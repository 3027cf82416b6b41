package cli

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/ws/internal/logging"
	"github.com/wesleyorama2/ws/internal/output"
	"github.com/wesleyorama2/ws/ws"
)

var methods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodHead,
	http.MethodOptions,
	http.MethodTrace,
}

type requestFlags struct {
	headers []string
	params  []string
	files   []string
	data    string
	json    string
	mime    string
	user    string
	xml     bool
	extract string
	schema  string
	output  string
	noColor bool
	verbose bool
	fail    bool
}

func newRequestCmd(a *app, method string) *cobra.Command {
	var f requestFlags

	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " URL [ARGS...]",
		Short: fmt.Sprintf("Make a %s request to the specified URL", method),
		Example: fmt.Sprintf(`  ws %s 'https://search.example.com/?q=%%s&page=%%s' "gophers & co" 2`,
			strings.ToLower(method)),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRequest(cmd, method, args, &f)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "HTTP header \"Key: Value\" (repeatable)")
	flags.StringArrayVarP(&f.params, "param", "p", nil, "Parameter key=value; query string or form field (repeatable)")
	flags.StringArrayVarP(&f.files, "file", "F", nil, "File to upload as [name=]path (repeatable)")
	flags.StringVarP(&f.data, "data", "d", "", "Raw request body")
	flags.StringVar(&f.json, "json", "", "JSON request body")
	flags.StringVar(&f.mime, "mime", "", "Content-Type of the request body")
	flags.StringVarP(&f.user, "user", "u", "", "Credentials user:password for Basic or Digest authentication")
	flags.BoolVar(&f.xml, "xml", false, "Parse the response as XML and print it indented")
	flags.StringVar(&f.extract, "extract", "", "Print the value at a JSONPath such as $.items[0].id")
	flags.StringVar(&f.schema, "schema", "", "Validate the JSON response against a JSON Schema file")
	flags.StringVarP(&f.output, "output", "o", string(output.FormatText), "Output format (text, json, yaml)")
	flags.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Print the request and response headers")
	flags.BoolVar(&f.fail, "fail", false, "Exit with an error on 4xx and 5xx responses")

	cmd.MarkFlagsMutuallyExclusive("data", "json")
	cmd.MarkFlagsMutuallyExclusive("xml", "extract")

	return cmd
}

func (a *app) runRequest(cmd *cobra.Command, method string, args []string, f *requestFlags) error {
	format, err := output.ParseFormat(f.output)
	if err != nil {
		return err
	}

	headers, err := parseHeaders(f.headers)
	if err != nil {
		return err
	}
	params, err := parseParams(f.params)
	if err != nil {
		return err
	}

	client, err := a.newClient(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	session := client.NewSession()
	defer session.Release()
	ctx := ws.WithSession(cmd.Context(), session)

	req := client.URLf(normalizeURL(args[0]), args[1:]...)
	if _, ok := headers["X-Request-Id"]; !ok {
		headers["X-Request-Id"] = uuid.NewString()
	}
	req.WithHeaders(headers)
	if len(params) > 0 {
		req.WithParams(params)
	}
	if len(f.files) > 0 {
		req.WithFileParams(parseFiles(f.files)...)
	}
	switch {
	case cmd.Flags().Changed("data"):
		req.WithBody(f.data)
	case cmd.Flags().Changed("json"):
		req.WithBody(f.json).WithMimeType("application/json")
	}
	if f.mime != "" {
		req.WithMimeType(f.mime)
	}

	if f.user != "" {
		user, password, err := parseUser(f.user)
		if err != nil {
			return err
		}
		if err := session.Authenticate(user, password, req.URL); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	formatter := output.GetFormatter(format, f.verbose, colorDisabled(out, f.noColor))

	if f.verbose {
		fmt.Fprint(out, formatter.FormatRequest(output.NewRequestData(method, req)))
	}

	log := logging.FromContext(cmd.Context()).With(zap.String("request_id", headers["X-Request-Id"]))
	resp, err := req.Do(ctx, method)
	if err != nil {
		log.Debug("request failed", zap.Error(err))
		return err
	}
	// every output below works on the cached body
	if _, err := resp.Bytes(); err != nil {
		log.Debug("reading response failed", zap.Error(err))
		return err
	}

	switch {
	case f.extract != "":
		value, err := resp.JSONPath(f.extract)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, value.String())
	case f.xml:
		doc, err := resp.XML()
		if err != nil {
			return err
		}
		doc.Indent(2)
		if _, err := doc.WriteTo(out); err != nil {
			return err
		}
	default:
		text, err := formatter.FormatResponse(resp)
		if err != nil {
			return err
		}
		fmt.Fprint(out, text)
	}

	if f.schema != "" {
		schema, err := os.ReadFile(f.schema)
		if err != nil {
			return fmt.Errorf("error reading schema: %w", err)
		}
		noColor := colorDisabled(cmd.ErrOrStderr(), f.noColor)
		if err := resp.ValidateJSON(string(schema)); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s response does not match %s\n", output.ErrorIcon(noColor), f.schema)
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s response matches %s\n", output.SuccessIcon(noColor), f.schema)
	}

	if f.fail && resp.IsError() {
		return fmt.Errorf("%s %s: server responded %s", method, req.URL, resp.StatusText())
	}
	return nil
}
