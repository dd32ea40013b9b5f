package cli

import (
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gasdesk/agent-server/internal/agent/mcp"
)

var naturalGasCmd = &cobra.Command{
	Use:   "naturalgas-server",
	Short: "Serve natural gas market data over stdio JSON-RPC",
	Long: `Speaks newline-delimited JSON-RPC 2.0 on stdin/stdout. Started by the agent
as a child process; logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := mcp.NewEIAServer(&mcp.EIA{
			APIKey:  config.Tools.EIAAPIKey,
			BaseURL: config.Tools.EIABaseURL,
			HTTP:    &http.Client{Timeout: 30 * time.Second},
		})
		log().Info().Str("server", mcp.ServerName).Msg("natural gas data server ready on stdio")
		return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
	},
}
