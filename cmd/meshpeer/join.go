package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/immxrtalbeast/cohort/internal/config"
	"github.com/immxrtalbeast/cohort/internal/domain"
	"github.com/immxrtalbeast/cohort/internal/mesh"
	"github.com/immxrtalbeast/cohort/internal/protocol"
	"github.com/immxrtalbeast/cohort/internal/signaling"
	"github.com/immxrtalbeast/cohort/lib/logger"
	"github.com/immxrtalbeast/cohort/lib/logger/sl"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagServer     string
	flagRoom       string
	flagName       string
	flagColor      string
	flagMedia      string
	flagConfigPath string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a call room and hold the mesh until interrupted",
	Long: `Join a call room and hold the mesh until interrupted.

Examples:
  meshpeer join --room standup
  meshpeer join --room standup --media audio --server wss://relay.example.com/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return joinCall(ctx)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagServer, "server", "s", "ws://localhost:8080/ws", "relay websocket url")
	joinCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "call room id")
	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "display name")
	joinCmd.Flags().StringVar(&flagColor, "color", "", "display color, #rrggbb")
	joinCmd.Flags().StringVarP(&flagMedia, "media", "m", string(domain.MediaVideo), "media kind, audio or video")
	joinCmd.Flags().StringVarP(&flagConfigPath, "config", "c", "", "path to config file, defaults to $CONFIG_PATH")
	_ = joinCmd.MarkFlagRequired("room")

	rootCmd.AddCommand(joinCmd)
}

// configPath loads .env from the working directory, then prefers the flag
// over CONFIG_PATH.
func configPath(flagValue string) string {
	_ = godotenv.Load(".env")

	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}

func joinCall(ctx context.Context) error {
	media, err := domain.ParseMediaKind(flagMedia)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath(flagConfigPath))
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Env).With(slog.String("room", flagRoom))

	client := signaling.NewClient(flagServer, log)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		return fmt.Errorf("connect to %s: %w", flagServer, err)
	}
	defer client.Close()

	rtc := cfg.WebRTC
	coord := mesh.NewCoordinator(mesh.Options{
		RoomID:   flagRoom,
		Signaler: client,
		Factory: mesh.NewPionFactory(mesh.PionConfig{
			ICEServers: mesh.ICEServers(rtc.STUNServers, rtc.TURNServers, rtc.TURNUsername, rtc.TURNPassword),
			Video:      media == domain.MediaVideo,
		}, log),
		MaxPeers:        rtc.MaxMeshPeers,
		ConnectTimeout:  rtc.ConnectTimeout,
		DisconnectGrace: rtc.DisconnectGrace,
		OnView:          logView(log),
	}, log)
	defer coord.Close()

	join, err := protocol.New(protocol.TypeJoinCallRoom, flagRoom, protocol.JoinPayload{
		Name:      flagName,
		Color:     flagColor,
		MediaKind: string(media),
	})
	if err != nil {
		return err
	}
	if err := client.Send(join); err != nil {
		return err
	}
	log.Info("joining call", slog.String("server", flagServer), slog.String("media", string(media)))

	for {
		select {
		case <-ctx.Done():
			leave, _ := protocol.New(protocol.TypeLeaveCallRoom, flagRoom, nil)
			_ = client.Send(leave)
			log.Info("leaving call")
			return nil

		case msg, ok := <-client.Incoming():
			if !ok {
				return errors.New("relay connection closed")
			}
			if msg.Type == protocol.TypeRoomError {
				var roomErr protocol.RoomError
				if err := msg.Decode(&roomErr); err != nil {
					return err
				}
				return fmt.Errorf("relay refused: %s: %s", roomErr.Code, roomErr.Message)
			}
			if err := coord.HandleMessage(msg); err != nil {
				log.Warn("bad relay event", slog.String("type", msg.Type), sl.Err(err))
			}
		}
	}
}

func logView(log *slog.Logger) func(mesh.View) {
	return func(v mesh.View) {
		log.Info("mesh",
			slog.String("status", string(v.Status)),
			slog.Int("connected", len(v.Connected)),
			slog.Int("pending", len(v.Pending)),
			slog.Int("failed", len(v.Failed)),
		)
		for _, p := range v.Failed {
			log.Debug("peer unreachable", slog.String("peer", p.ID), slog.String("name", p.Name), slog.String("reason", p.Reason))
		}
	}
}
