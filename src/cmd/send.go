package cmd

import (
	"fmt"
	"strings"

	"github.com/hendrywilliam/sirengate/src/logger"
	message "github.com/hendrywilliam/sirengate/src/messages"
	"github.com/hendrywilliam/sirengate/src/stats"
	"github.com/spf13/cobra"
)

var (
	sendReason string
	sendTTS    bool
)

var sendCmd = &cobra.Command{
	Use:   "send <channel> <content>",
	Short: "Send a message to a channel",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v, true)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		api := message.New(newREST(cfg, stats.Nop{}, log))
		msg, err := api.CreateMessage(cmd.Context(), args[0], message.CreateMessageOptions{
			Data: message.CreateMessageData{
				Content: strings.Join(args[1:], " "),
				Tts:     sendTTS,
			},
			Reason: sendReason,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent message %s to channel %s\n", msg.ID, msg.ChannelID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendReason, "reason", "", "audit log reason")
	sendCmd.Flags().BoolVar(&sendTTS, "tts", false, "send as text-to-speech")
}
