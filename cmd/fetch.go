package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/observability"
)

func newFetchCmd(state *cliState) *cobra.Command {
	var (
		output  string
		include bool
	)

	fetchCmd := &cobra.Command{
		Use:   "fetch <url-or-path>",
		Short: "Log in, then GET a resource over the authenticated plain HTTP client",
		Long: `Fetch logs in through the browser, bridges the session cookies into the plain
HTTP client and issues a GET. A path is resolved against the login host.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			components, err := newFactory().Create(ctx, state.cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			client, err := components.Gateway.Client(ctx)
			if err != nil {
				return err
			}

			resp, err := client.Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}
			defer resp.Body.Close()
			logger.Info("Fetched resource.", zap.String("url", resp.Request.URL.String()), zap.Int("status", resp.StatusCode))

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}

			if include {
				writeHeaders(out, resp)
			}
			if _, err := io.Copy(out, resp.Body); err != nil {
				return fmt.Errorf("failed to read response body: %w", err)
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			return nil
		},
	}

	fetchCmd.Flags().StringVarP(&output, "output", "o", "", "write the body to a file instead of stdout")
	fetchCmd.Flags().BoolVarP(&include, "include", "i", false, "print the status line and response headers")
	return fetchCmd
}

func writeHeaders(w io.Writer, resp *http.Response) {
	fmt.Fprintf(w, "%s %s\n", resp.Proto, resp.Status)
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			fmt.Fprintf(w, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintln(w)
}
