package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/delist-sh/delist/pkg/models"
)

func NewFindingsCommand(engineVersion string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "findings",
		Short: "Review and verify discovered listings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List findings awaiting verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listFindings(engineVersion)
		},
	}
	list.Flags().String("status", string(models.VerificationPending), "filter by verification status")
	_ = viper.BindPFlag("findings.status", list.Flags().Lookup("status"))

	confirm := &cobra.Command{
		Use:   "confirm [finding-id...]",
		Short: "Confirm findings as the user's own listings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyFindings(engineVersion, args, models.VerificationConfirmed)
		},
	}

	reject := &cobra.Command{
		Use:   "reject [finding-id...]",
		Short: "Reject findings that are not the user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyFindings(engineVersion, args, models.VerificationRejected)
		},
	}

	cmd.AddCommand(list, confirm, reject)
	return cmd
}

func listFindings(engineVersion string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	status := models.VerificationStatus(viper.GetString("findings.status"))
	findings, err := app.Store.ListFindingsByVerification(status)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Printf("No findings with status %s.\n", status)
		return nil
	}
	for _, f := range findings {
		line := fmt.Sprintf("%s  %-20s  %s", f.ID, f.BrokerID, f.ListingURL)
		if f.Extracted.Name != "" {
			line += "  name=" + f.Extracted.Name
		}
		if f.Extracted.Age > 0 {
			line += fmt.Sprintf("  age=%d", f.Extracted.Age)
		}
		fmt.Println(line)
	}
	return nil
}

func verifyFindings(engineVersion string, ids []string, status models.VerificationStatus) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	now := time.Now().UTC()
	for _, id := range ids {
		if err := app.Store.SetVerification(id, status, now); err != nil {
			return fmt.Errorf("finding %s: %w", id, err)
		}
		fmt.Printf("finding %s -> %s\n", id, status)
	}
	return nil
}
