package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeguard/orders"
	"github.com/rustyeddy/tradeguard/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show account risk state and active conditional orders",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	state, ok, err := st.LoadRiskState(cfg.Account.ID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("account %s: no recorded state\n", cfg.Account.ID)
		return nil
	}

	fmt.Printf("account:            %s (%s)\n", state.AccountID, cfg.Account.Mode)
	fmt.Printf("kill switch:        %v", state.KillSwitchActive)
	if state.KillSwitchActive {
		fmt.Printf("  (%s)", state.KillSwitchReason)
	}
	fmt.Println()
	fmt.Printf("daily realized pnl: %s\n", state.DailyRealizedPnL.StringFixed(2))
	fmt.Printf("trades today:       %d\n", state.TradesToday)
	fmt.Printf("consecutive losses: %d\n", state.ConsecutiveLosses)
	fmt.Printf("last reset:         %s\n", state.LastResetAt.Format("2006-01-02 15:04:05 MST"))

	persisted, err := st.LoadOrders(cfg.Account.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tTYPE\tSYMBOL\tQTY\tTRIGGER\tSTATUS")
	for _, o := range persisted {
		if o.Status != orders.Active && o.LastError == "" {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s", o.ID, o.Type, o.Symbol,
			o.Quantity.String(), o.TriggerPrice.String(), o.Status)
		if o.LastError != "" {
			fmt.Fprintf(w, " (execution failed: %s)", o.LastError)
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
