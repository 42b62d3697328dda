package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hendrywilliam/sirengate/src/bot"
	"github.com/hendrywilliam/sirengate/src/gateway"
	"github.com/hendrywilliam/sirengate/src/interactions"
	"github.com/hendrywilliam/sirengate/src/logger"
	"github.com/hendrywilliam/sirengate/src/server"
	"github.com/hendrywilliam/sirengate/src/structs"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the gateway and run the bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(v, true)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Logging, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), signals...)
		defer stop()

		backend, err := newStats(ctx, cfg.Stats)
		if err != nil {
			return err
		}
		defer func() {
			if err := backend.close(); err != nil {
				log.Warn().Err(err).Msg("close stats backend")
			}
		}()

		client := newREST(cfg, backend.recorder, log)
		session := gateway.NewSession(client, gatewayConfig(cfg, log))

		b := bot.New(session,
			bot.WithMaxAttempts(cfg.Gateway.MaxReconnectAttempts),
			bot.WithMaxBackoff(cfg.Gateway.MaxBackoff),
			bot.WithLogger(log),
		)
		registerHandlers(b, interactions.New(client), log)

		serverErr := make(chan error, 1)
		if cfg.Server.Enabled {
			srv := server.NewServer(session, client, backend.source, log)
			go func() {
				serverErr <- srv.StartServer(ctx, cfg.Server.Address)
			}()
		}

		err = b.Run(ctx)
		stop()
		if cfg.Server.Enabled {
			if serr := <-serverErr; serr != nil && err == nil {
				err = serr
			}
		}
		return err
	},
}

func registerHandlers(b *bot.Bot, api *interactions.InteractionAPI, log zerolog.Logger) {
	b.On(structs.EventNameReady, func(ctx context.Context, e *gateway.Event) {
		ready := structs.ReadyEvent{}
		if err := e.Decode(&ready); err != nil {
			log.Warn().Err(err).Msg("decode READY")
			return
		}
		log.Info().
			Str("user", ready.User.Username).
			Str("session_id", ready.SessionID).
			Msg("gateway ready")
	})
	b.On(structs.EventNameResumed, func(ctx context.Context, e *gateway.Event) {
		log.Info().Msg("gateway session resumed")
	})
	b.On(structs.EventNameMessageCreate, func(ctx context.Context, e *gateway.Event) {
		msg := structs.Message{}
		if err := e.Decode(&msg); err != nil {
			log.Warn().Err(err).Msg("decode MESSAGE_CREATE")
			return
		}
		log.Debug().
			Str("channel_id", msg.ChannelID).
			Str("author", msg.Author.Username).
			Msg("message created")
	})
	b.OnAsync(structs.EventNameInteractionCreate, func(ctx context.Context, e *gateway.Event) {
		in := interactions.Interaction{}
		if err := e.Decode(&in); err != nil {
			log.Warn().Err(err).Msg("decode INTERACTION_CREATE")
			return
		}
		if err := answerInteraction(ctx, api, in); err != nil {
			log.Error().Err(err).Str("interaction_id", in.ID).Msg("interaction callback failed")
			return
		}
		log.Debug().Str("interaction_id", in.ID).Msg("interaction callback sent")
	})
	b.OnAny(func(ctx context.Context, e *gateway.Event) {
		log.Debug().Object("event", e).Msg("dispatch")
	})
}

// answerInteraction replies to the commands the bot knows. Others are
// ignored.
func answerInteraction(ctx context.Context, api *interactions.InteractionAPI, in interactions.Interaction) error {
	var resp interactions.Response
	switch {
	case in.Type == interactions.InteractionTypePing:
		resp = interactions.Response{Type: interactions.ResponseTypePong}
	case in.Type == interactions.InteractionTypeApplicationCommand && in.Data.Name == interactions.PingCommand.Name:
		resp = interactions.Response{
			Type: interactions.ResponseTypeChannelMessageWithSource,
			Data: &interactions.ResponseMessage{Content: "pong", Flags: interactions.MessageFlagEphemeral},
		}
	default:
		return nil
	}
	_, err := api.Reply(ctx, in.ID, in.Token, interactions.ReplyOptions{Response: resp})
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
}
