package commands

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdb/askdb/internal/cli/remote"
)

type remoteOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func newRemoteCommand() *cobra.Command {
	opts := &remoteOptions{}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running askdb server",
		Example: `  askdb remote health
  askdb remote --base-url http://askdb:8080 --api-key k1 ask "¿cuántas sillas hay?"`,
	}

	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", envOr("ASKDB_REMOTE_URL", remote.DefaultBaseURL), "askdb API base URL")
	cmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", os.Getenv("ASKDB_REMOTE_API_KEY"), "API key for authenticated requests")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 2*time.Minute, "HTTP timeout")

	for _, endpoint := range []struct{ use, path, short string }{
		{"health", "/v1/health", "GET /v1/health"},
		{"ready", "/v1/ready", "GET /v1/ready"},
		{"schema", "/v1/schema", "GET /v1/schema"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   endpoint.use,
			Short: endpoint.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				body, err := opts.client().Do(cmd.Context(), http.MethodGet, endpoint.path, nil)
				if err != nil {
					return err
				}
				if pretty, ok := remote.PrettyJSON(body); ok {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), pretty)
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
				return err
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ask <question...>",
		Short: "POST /v1/ask and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Answer)
			return err
		},
	})

	return cmd
}

func (o *remoteOptions) client() *remote.Client {
	return remote.New(remote.Options{BaseURL: o.BaseURL, APIKey: o.APIKey, Timeout: o.Timeout})
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
