package cli

import (
	"log"

	"live-quiz-service/internal/config"

	"github.com/spf13/cobra"
)

// NewSweepCmd deletes sessions older than session.retention together with their players and answers.
func NewSweepCmd(configPath *string) *cobra.Command {
	var retention string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired quiz sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if retention != "" {
				cfg.Session.Retention = retention
			}
			st, err := buildStack(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			keep := config.TTLDuration(cfg.Session.Retention, config.DefaultRetention)
			removed, err := st.service.Sweep(cmd.Context(), keep)
			if err != nil {
				return err
			}
			log.Printf("swept %d sessions older than %s", removed, keep)
			return nil
		},
	}
	cmd.Flags().StringVar(&retention, "older-than", "", "override session.retention, e.g. 720h")
	return cmd
}
