package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, queue and cache state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return trackCLIError("status", err)
	}
	defer a.close()

	st, err := a.engine.Status()
	if err != nil {
		return trackCLIError("status", err)
	}
	stats, err := a.db.GetStats()
	if err != nil {
		return trackCLIError("status", fmt.Errorf("cache stats: %w", err))
	}

	renderStatus(os.Stdout, st, stats, time.Now())
	return nil
}
