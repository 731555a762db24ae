package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"co2-bank-monitor/internal/model"
)

func newTestEmailCmd(v *viper.Viper) *cobra.Command {
	var bank string

	cmd := &cobra.Command{
		Use:   "test-email",
		Short: "Send a procurement email to the sender address only",
		Long:  "test-email renders the procurement email for one bank and sends it to the configured sender. Nothing is recorded in the alert history.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := model.Bank(bank)
			if !b.Valid() {
				return fmt.Errorf("--bank must be %q or %q, got %q", model.BankLeft, model.BankRight, bank)
			}

			cfg, logger, err := loadConfig(v)
			if err != nil {
				return err
			}
			a, err := wireApp(cfg, logger)
			if err != nil {
				return err
			}
			if err := a.engine.SendTestEmail(cmd.Context(), b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test email for the %s bank sent to %s\n", b, a.creds.SMTPSender)
			return nil
		},
	}
	cmd.Flags().StringVar(&bank, "bank", string(model.BankLeft), "bank to render the email for (left or right)")
	return cmd
}
