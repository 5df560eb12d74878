package commands

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/p2pdrop/internal/config"
	"github.com/1ureka/p2pdrop/internal/signaling"
	"github.com/1ureka/p2pdrop/internal/util"
)

// relay: run the signaling relay peers register with.
func relayCmd() *cobra.Command {
	var addr, redisAddr string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the signaling relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Role = config.RoleRelay
			if addr != "" {
				cfg.Relay.Addr = addr
			}
			if redisAddr != "" {
				cfg.Relay.RedisAddr = redisAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var presence signaling.Presence
			if cfg.Relay.RedisAddr != "" {
				p, err := signaling.NewRedisPresence(cmd.Context(), cfg.Relay.RedisAddr, cfg.Relay.RedisDB, cfg.Relay.PresenceTTL)
				if err != nil {
					return err
				}
				util.LogInfo("Tracking presence in Redis at %s", cfg.Relay.RedisAddr)
				presence = p
			}

			return signaling.NewRelay(presence).Run(cmd.Context(), cfg.Relay.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "Redis address for presence (default in-memory)")
	return cmd
}
