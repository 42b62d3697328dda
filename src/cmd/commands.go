package cmd

import (
	"fmt"

	"github.com/hendrywilliam/sirengate/src/interactions"
	"github.com/hendrywilliam/sirengate/src/logger"
	"github.com/hendrywilliam/sirengate/src/stats"
	"github.com/spf13/cobra"
)

var commandsCmd = &cobra.Command{
	Use:   "commands <application_id>",
	Short: "Register the bot's application commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v, true)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		api := interactions.New(newREST(cfg, stats.Nop{}, log))
		registered, err := api.RegisterCommands(cmd.Context(), args[0], []interactions.Command{interactions.PingCommand})
		if err != nil {
			return err
		}
		for _, c := range registered {
			fmt.Fprintf(cmd.OutOrStdout(), "registered /%s (%s)\n", c.Name, c.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
}
