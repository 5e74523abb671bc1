package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/njfio/taubot/delivery"
	"github.com/njfio/taubot/ingest"
	"github.com/njfio/taubot/internal/channelruntime"
	"github.com/njfio/taubot/internal/logutil"
)

func newCycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one pipeline cycle against the state directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			stateDir, err := stateDirFromViper()
			if err != nil {
				return err
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			cfg := channelruntime.Config{
				StateDir:                       stateDir,
				FixturePath:                    strings.TrimSpace(flagOrViperString(cmd, "fixture", "ingress.fixture")),
				PolicyPath:                     strings.TrimSpace(flagOrViperString(cmd, "policy", "policy.path")),
				QueueLimit:                     flagOrViperInt(cmd, "queue-limit", "queue.limit"),
				ProcessedEventCap:              flagOrViperInt(cmd, "processed-event-cap", "queue.processed_event_cap"),
				MaxAttachmentsPerEvent:         flagOrViperInt(cmd, "max-attachments", "media.max_attachments_per_event"),
				TypingPresenceMinResponseChars: flagOrViperInt(cmd, "typing-min-chars", "telemetry.typing_presence_min_response_chars"),
				Retry: delivery.RetryConfig{
					MaxAttempts: flagOrViperInt(cmd, "retry-max-attempts", "delivery.retry_max_attempts"),
					BaseDelayMS: flagOrViperInt64(cmd, "retry-base-delay-ms", "delivery.retry_base_delay_ms"),
					JitterMaxMS: flagOrViperInt64(cmd, "retry-jitter-max-ms", "delivery.retry_jitter_max_ms"),
				},
				DecisionActor: strings.TrimSpace(flagOrViperString(cmd, "decision-actor", "approvals.decision_actor")),
				KnownSecrets:  knownSecretsFromViper(),
			}

			deliverer, err := delivererFromConfig(cmd)
			if err != nil {
				return err
			}

			runtime, err := channelruntime.New(cfg, channelruntime.Options{
				Logger:    logger,
				Deliverer: deliverer,
				Handlers: channelruntime.CommandHandlers{
					AuthStatus: channelruntime.StaticAuthStatusHandler{
						Configured: map[string]bool{
							string(ingest.TransportTelegram): viper.GetString("providers.telegram.token") != "",
							string(ingest.TransportDiscord):  viper.GetString("providers.discord.token") != "",
							string(ingest.TransportWhatsApp): viper.GetString("providers.whatsapp.token") != "",
						},
					},
				},
			})
			if err != nil {
				return err
			}

			timeout := flagOrViperDuration(cmd, "timeout", "cycle.timeout")
			if timeout <= 0 {
				timeout = 5 * time.Minute
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			summary, err := runtime.RunCycle(ctx)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"cycle: discovered=%d queued=%d completed=%d denied=%d failed=%d duplicates=%d overflow=%d health=%s\n",
				summary.Discovered, summary.Queued, summary.Completed, summary.Denied,
				summary.Failed, summary.DuplicateSkips, summary.Overflow, summary.HealthState)
			return nil
		},
	}

	cmd.Flags().String("fixture", "", "Ingress fixture JSON file (defaults to scanning the ingress dir).")
	cmd.Flags().String("policy", "", "Channel policy file (defaults to channel_policy.json in the state dir).")
	cmd.Flags().Int("queue-limit", 0, "Maximum events admitted per cycle (0 = unlimited).")
	cmd.Flags().Int("processed-event-cap", 0, "Processed dedup key cap before oldest-first eviction.")
	cmd.Flags().Int("max-attachments", 0, "Attachments understood per event.")
	cmd.Flags().Int("typing-min-chars", 0, "Minimum reply length for typing/presence telemetry.")
	cmd.Flags().Int("retry-max-attempts", 0, "Delivery attempts before an event fails.")
	cmd.Flags().Int64("retry-base-delay-ms", 0, "Base delivery retry delay in milliseconds.")
	cmd.Flags().Int64("retry-jitter-max-ms", 0, "Deterministic jitter cap in milliseconds.")
	cmd.Flags().String("decision-actor", "", "Actor recorded on approvals resolved from chat.")
	cmd.Flags().String("delivery-mode", "dry_run", "Delivery mode: dry_run or provider.")
	cmd.Flags().Int("max-chars", 0, "Reply chunk size for dry-run delivery (0 = no chunking).")
	cmd.Flags().Duration("timeout", 0, "Cycle timeout.")

	return cmd
}

func delivererFromConfig(cmd *cobra.Command) (delivery.Deliverer, error) {
	mode := strings.TrimSpace(flagOrViperString(cmd, "delivery-mode", "delivery.mode"))
	switch mode {
	case "", "dry_run":
		return &delivery.DryRunDeliverer{
			MaxChars: flagOrViperInt(cmd, "max-chars", "delivery.max_chars"),
		}, nil
	case "provider":
		return delivery.NewProviderDeliverer(&http.Client{Timeout: 30 * time.Second}, delivery.ProviderConfig{
			TelegramBotToken:    viper.GetString("providers.telegram.token"),
			TelegramBaseURL:     viper.GetString("providers.telegram.base_url"),
			DiscordBotToken:     viper.GetString("providers.discord.token"),
			DiscordBaseURL:      viper.GetString("providers.discord.base_url"),
			WhatsAppAccessToken: viper.GetString("providers.whatsapp.token"),
			WhatsAppPhoneID:     viper.GetString("providers.whatsapp.phone_id"),
			WhatsAppBaseURL:     viper.GetString("providers.whatsapp.base_url"),
			MaxChars:            flagOrViperInt(cmd, "max-chars", "delivery.max_chars"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown delivery mode: %s", mode)
	}
}

// knownSecretsFromViper gathers every configured provider credential so the
// redactor can guarantee none of them reach replies or logs.
func knownSecretsFromViper() []string {
	var secrets []string
	for _, key := range []string{
		"providers.telegram.token",
		"providers.discord.token",
		"providers.whatsapp.token",
	} {
		if v := strings.TrimSpace(viper.GetString(key)); v != "" {
			secrets = append(secrets, v)
		}
	}
	return secrets
}
