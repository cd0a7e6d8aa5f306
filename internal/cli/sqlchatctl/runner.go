package sqlchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run executes one sqlchatctl invocation and returns the process exit code:
// 0 on success, 1 when the request or the server failed, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	if args == nil {
		args = []string{}
	}
	root := newRootCommand(defaults, stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var failure *requestFailure
	if errors.As(err, &failure) {
		_, _ = fmt.Fprintln(stderr, failure.Error())
		return 1
	}
	_, _ = fmt.Fprintf(stderr, "error: %v\n\n", err)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

type requestFailure struct {
	err error
}

func (f *requestFailure) Error() string { return f.err.Error() }
func (f *requestFailure) Unwrap() error { return f.err }

func failed(format string, args ...any) error {
	return &requestFailure{err: fmt.Errorf(format, args...)}
}

type client struct {
	baseURL string
	apiKey  string
	output  string
	http    *http.Client
	stdout  io.Writer
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	var (
		baseURL string
		apiKey  string
		timeout time.Duration
		output  string
	)
	c := &client{stdout: stdout}

	root := &cobra.Command{
		Use:           "sqlchatctl",
		Short:         "Command line client for the SQLChat API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return errors.New("command is required")
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if output != OutputTable && output != OutputJSON {
				return fmt.Errorf("invalid --output %q: expected table or json", output)
			}
			c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
			c.apiKey = strings.TrimSpace(apiKey)
			c.output = output
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "SQLChat API base URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	root.PersistentFlags().StringVarP(&output, "output", "o", OutputTable, "Output format (table|json)")

	root.AddCommand(
		&cobra.Command{
			Use:   "health",
			Short: "GET /v1/health",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.status(cmd.Context(), "/v1/health")
			},
		},
		&cobra.Command{
			Use:   "ready",
			Short: "GET /v1/ready",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.status(cmd.Context(), "/v1/ready")
			},
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Print the schema description the model sees",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.schema(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "ask <question...>",
			Short: "Ask a question in natural language",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.query(cmd.Context(), strings.Join(args, " "))
			},
		},
		&cobra.Command{
			Use:   "sql <statement...>",
			Short: "Execute a SQL statement directly (requires sql_operator when auth is on)",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.query(cmd.Context(), "sql: "+strings.Join(args, " "))
			},
		},
		newHistoryCommand(c),
	)
	return root
}

func newHistoryCommand(c *client) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent chat queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			return c.history(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries (server default when 0)")
	return cmd
}

func (c *client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, failed("encode request: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, failed("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failed("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed("read response: %v", err)
	}
	if resp.StatusCode >= 400 {
		return nil, failed("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func (c *client) status(ctx context.Context, path string) error {
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if c.output == OutputJSON {
		return c.printJSON(raw)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return failed("decode response: %v", err)
	}
	_, _ = fmt.Fprintf(c.stdout, "status: %v\n", body["status"])
	return nil
}

func (c *client) schema(ctx context.Context) error {
	raw, err := c.do(ctx, http.MethodGet, "/v1/schema", nil)
	if err != nil {
		return err
	}
	if c.output == OutputJSON {
		return c.printJSON(raw)
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return failed("decode schema: %v", err)
	}
	_, _ = fmt.Fprintln(c.stdout, strings.TrimRight(body.Text, "\n"))
	return nil
}

func (c *client) query(ctx context.Context, input string) error {
	raw, err := c.do(ctx, http.MethodPost, "/v1/query", map[string]string{"input": input})
	if err != nil {
		return err
	}
	var body queryResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return failed("decode query response: %v", err)
	}
	if c.output == OutputJSON {
		if err := c.printJSON(raw); err != nil {
			return err
		}
	} else {
		printQuery(c.stdout, body)
	}
	if !body.Success {
		return failed("query failed (trace %s)", body.TraceID)
	}
	return nil
}

func (c *client) history(ctx context.Context, limit int) error {
	path := "/v1/history"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if c.output == OutputJSON {
		return c.printJSON(raw)
	}
	var body struct {
		Entries []historyEntry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return failed("decode history: %v", err)
	}
	printHistory(c.stdout, body.Entries, time.Now())
	return nil
}

func (c *client) printJSON(raw []byte) error {
	pretty, ok := prettyJSON(raw)
	if !ok {
		return failed("server returned invalid JSON")
	}
	_, _ = fmt.Fprintln(c.stdout, pretty)
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
