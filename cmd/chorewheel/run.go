package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorewheel/internal/push"
	"github.com/dukerupert/chorewheel/internal/server"
)

// rotateCmd runs one scheduled rotation pass, for deployments where an
// external cron drives the schedule.
func rotateCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate every due chore once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			cfg, db, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			eng, _ := server.NewEngine(db, cfg, nil, logger)
			report, err := eng.RunScheduledRotation(cmd.Context(), now)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			return report.Err()
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate as of this RFC 3339 time instead of now")
	return cmd
}

func remindCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send due reminders once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			cfg, db, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			eng, _ := server.NewEngine(db, cfg, nil, logger)
			report, err := eng.DueReminders(cmd.Context(), now)
			if report != nil {
				if perr := printJSON(map[string]any{
					"intents": len(report.Intents),
					"sent":    report.Sent(),
				}); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Evaluate as of this RFC 3339 time instead of now")
	return cmd
}

func vapidKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "CHOREWHEEL_VAPID_PUBLIC_KEY=%s\nCHOREWHEEL_VAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}

func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
