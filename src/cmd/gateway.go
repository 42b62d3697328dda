package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/hendrywilliam/sirengate/src/logger"
	"github.com/hendrywilliam/sirengate/src/stats"
	"github.com/hendrywilliam/sirengate/src/structs"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Show the gateway url and session start limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v, true)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		gb, err := newREST(cfg, stats.Nop{}, log).GatewayBot(cmd.Context())
		if err != nil {
			return err
		}
		renderGatewayBot(cmd.OutOrStdout(), gb)
		return nil
	},
}

func renderGatewayBot(w io.Writer, gb *structs.GatewayBot) {
	limit := gb.SessionStartLimit
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"URL", gb.URL},
		{"Shards", gb.Shards},
		{"Sessions remaining", fmt.Sprintf("%d / %d", limit.Remaining, limit.Total)},
		{"Resets in", (time.Duration(limit.ResetAfter) * time.Millisecond).String()},
		{"Max concurrency", limit.MaxConcurrency},
	})
	t.Render()
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
