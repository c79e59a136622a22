package cmd

import (
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formgate/internal/auth"
	"github.com/xkilldash9x/formgate/internal/observability"
)

// cookieSummary describes a captured cookie without its value.
type cookieSummary struct {
	Name    string     `json:"name"`
	Domain  string     `json:"domain"`
	Path    string     `json:"path,omitempty"`
	Secure  bool       `json:"secure"`
	Expires *time.Time `json:"expires,omitempty"`
}

type loginResult struct {
	LoginURL string          `json:"login_url"`
	Username string          `json:"username"`
	Host     string          `json:"host"`
	Pooled   bool            `json:"pooled"`
	Cookies  []cookieSummary `json:"cookies"`
}

func summarize(set auth.CookieSet) []cookieSummary {
	out := make([]cookieSummary, 0, len(set))
	for _, c := range set {
		s := cookieSummary{Name: c.Name, Domain: c.Domain, Secure: c.Secure, Expires: c.Expires}
		if c.Path != nil {
			s.Path = *c.Path
		}
		out = append(out, s)
	}
	return out
}

func newLoginCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Run the form login handshake and report the captured session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			components, err := newFactory().Create(ctx, state.cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			client, err := components.Gateway.Login(ctx)
			if err != nil {
				return err
			}

			res := loginResult{
				LoginURL: state.cfg.Auth().LoginURL,
				Username: state.cfg.Auth().Username,
				Host:     client.Host(),
				Pooled:   client.Pooled(),
				Cookies:  summarize(components.Gateway.Cookies()),
			}
			logger.Info("Login complete.", zap.String("host", res.Host), zap.Int("cookies", len(res.Cookies)))
			return writeLoginResult(cmd.OutOrStdout(), res, state.jsonOut)
		},
	}
}

func writeLoginResult(w io.Writer, res loginResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "Logged in to %s as %s (%d cookies)\n", res.Host, res.Username, len(res.Cookies))
	for _, c := range res.Cookies {
		expiry := "session"
		if c.Expires != nil {
			expiry = c.Expires.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "  %-24s %-28s %-10s %s\n", c.Name, c.Domain, c.Path, expiry)
	}
	return nil
}
