package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/maykinmedia/gemma-zaken-demo/internal/apilog"
	"github.com/maykinmedia/gemma-zaken-demo/internal/constants"
)

// NewLogCommand creates the log command
func NewLogCommand() *cobra.Command {
	var (
		server  string
		service string
		empty   bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the API request log of a running server",
		Long: `Show the requests a running "zac serve" made to the ZDS APIs, oldest
first. Use --clear to empty the log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat()
			if err != nil {
				return err
			}

			if server == "" {
				settings, _, err := loadSettings()
				if err != nil {
					return err
				}

				server = serverURL(settings.Server.Addr)
			}

			client := retryablehttp.NewClient()
			client.RetryMax = constants.DefaultRetryMax
			client.Logger = nil
			client.ErrorHandler = retryablehttp.PassthroughErrorHandler

			if empty {
				return clearLog(cmd.Context(), client.StandardClient(), server)
			}

			entries, err := fetchLog(cmd.Context(), client.StandardClient(), server, service)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), format, entries, func(table *tablewriter.Table) error {
				table.Header("Time", "Service", "Method", "URL", "Status")

				for _, entry := range entries {
					_ = table.Append(
						entry.Timestamp.Format("15:04:05"),
						entry.Service,
						entry.Request.Method,
						apilog.ShortenURL(entry.Request.URL),
						statusCell(entry.Response.Status),
					)
				}

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "URL of the running server (default from server.addr)")
	cmd.Flags().StringVar(&service, "service", "", "only show requests to this service")
	cmd.Flags().BoolVar(&empty, "clear", false, "empty the log")

	return cmd
}

// serverURL turns a listen address into a URL on the local host.
func serverURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}

	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	return "http://" + addr
}

func statusCell(status int) string {
	if status == 0 {
		return "-"
	}

	return strconv.Itoa(status)
}

func fetchLog(ctx context.Context, client *http.Client, server, service string) ([]apilog.Entry, error) {
	target := server + "/api/log"
	if service != "" {
		target += "?" + url.Values{"service": {service}}.Encode()
	}

	body, err := doLogRequest(ctx, client, http.MethodGet, target, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var entries []apilog.Entry

	err = json.Unmarshal(body, &entries)
	if err != nil {
		return nil, fmt.Errorf("decoding log: %w", err)
	}

	return entries, nil
}

func clearLog(ctx context.Context, client *http.Client, server string) error {
	_, err := doLogRequest(ctx, client, http.MethodDelete, server+"/api/log", http.StatusNoContent)

	return err
}

func doLogRequest(ctx context.Context, client *http.Client, method, target string, expected int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != expected {
		return nil, fmt.Errorf("%w: %s %s returned %d", constants.ErrUnexpectedStatus, method, target, resp.StatusCode)
	}

	return body, nil
}
