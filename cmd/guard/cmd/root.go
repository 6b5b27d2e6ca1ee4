package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "guard",
	Short: "Trade-safety and conditional-order engine",
	Long: `Guard gates every live trade behind account risk checks and manages
stop-loss, take-profit, and trailing-stop orders against live prices.

It provides:
  - A safety gate with kill switch, daily-loss, position-size,
    portfolio-heat, and slippage checks
  - FIFO cost-basis position accounting with realized/unrealized P&L
  - Conditional order management with a recurring price monitor
  - Durable state in SQLite, rebuilt on restart
  - Replay of recorded tick data through the full engine`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (YAML or JSON)")
}
