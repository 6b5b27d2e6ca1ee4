package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradeguard/journal"
	"github.com/rustyeddy/tradeguard/log"
	"github.com/rustyeddy/tradeguard/replay"
)

var (
	rpTicksPath string
	rpJournal   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded ticks through the engine",
	Long: `Replay streams a recorded tick CSV (plain or .xz) through a fresh
in-memory engine wired to the sim venue, so safety-gate decisions and
conditional-order triggers can be re-checked against captured data.

Format: time,symbol,price[,event,side,quantity] with event OPEN submitting
an entry through the gate at that tick.`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&rpTicksPath, "ticks", "t", "", "path to tick CSV (required)")
	replayCmd.Flags().BoolVar(&rpJournal, "journal", false, "write results to the configured journal")
	replayCmd.MarkFlagRequired("ticks")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := log.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var jrnl journal.Journal = journal.Nop{}
	if rpJournal {
		if jrnl, err = journalFromConfig(cfg.Journal); err != nil {
			return err
		}
		defer jrnl.Close()
	}

	res, err := replay.Run(cmd.Context(), cfg, rpTicksPath, jrnl, logger)
	if err != nil {
		return err
	}

	fmt.Printf("ticks:     %d\n", res.Ticks)
	fmt.Printf("opens:     %d (%d rejected)\n", res.Opens, res.Rejected)
	fmt.Printf("triggered: %d\n", res.Triggered)
	return nil
}
