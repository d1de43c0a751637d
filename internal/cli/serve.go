package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cascade/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides [api] host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides [api] port)")
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Config file (default $CASCADE_HOME/config.toml)")
	serveCmd.Flags().BoolVar(&serveNoMetrics, "no-metrics", false, "Do not expose /metrics")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost      string
	servePort      int
	serveConfig    string
	serveNoMetrics bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the cascade API server",
	Long: `Start the HTTP API on localhost:7420 (see [api] in config.toml).

Every scope in the data directory is checked for stored cycles before the
server starts accepting requests; failing checks are reported on /health.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	var (
		cfg daemon.Config
		err error
	)
	if serveConfig != "" {
		cfg, err = daemon.LoadConfigFile(serveConfig)
	} else {
		cfg, err = daemon.LoadConfig()
	}
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveNoMetrics {
		cfg.Telemetry.Prometheus = false
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	d.Health.RunOnce(ctx)
	for _, st := range d.Health.Statuses() {
		if !st.Healthy {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: health check %s failing: %s\n", st.Name, st.Error)
		}
	}

	return d.Serve(ctx)
}
