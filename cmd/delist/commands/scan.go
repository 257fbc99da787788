package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/delist-sh/delist/internal/broker"
	"github.com/delist-sh/delist/pkg/models"
)

func NewScanCommand(engineVersion string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run and inspect broker scans",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Scan the broker catalog for a profile's listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(engineVersion)
		},
	}
	run.Flags().StringP("profile", "p", "", "profile id to scan for (required)")
	run.Flags().String("category", "", "only scan brokers in this category")
	run.Flags().StringSlice("brokers", nil, "only scan these broker ids")
	_ = run.MarkFlagRequired("profile")
	_ = viper.BindPFlag("scan.profile", run.Flags().Lookup("profile"))
	_ = viper.BindPFlag("scan.category", run.Flags().Lookup("category"))
	_ = viper.BindPFlag("scan.brokers", run.Flags().Lookup("brokers"))

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent scan jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listScans(engineVersion)
		},
	}

	status := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show one scan job with its per-broker rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return scanStatus(engineVersion, args[0])
		},
	}

	cmd.AddCommand(run, list, status)
	return cmd
}

func runScan(engineVersion string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	filter := broker.FilterAll()
	if ids := viper.GetStringSlice("scan.brokers"); len(ids) > 0 {
		filter = broker.FilterIDs(ids...)
	} else if cat := viper.GetString("scan.category"); cat != "" {
		filter = broker.FilterCategory(cat)
	}

	jobID, err := app.Orchestrator.StartScan(context.Background(), viper.GetString("scan.profile"), filter)
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}
	logrus.Infof("Scan started with ID: %s", jobID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, cancelling scan...")
		_ = app.Orchestrator.CancelScan(jobID)
	}()

	return monitorScan(app, jobID)
}

// monitorScan polls the job row until it reaches a terminal status,
// echoing broker events as they arrive.
func monitorScan(app *App, jobID string) error {
	sub := app.Hub.Subscribe()
	defer app.Hub.Unsubscribe(sub)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case evt := <-sub:
			logrus.WithField("event", evt.Type).Debugf("%s", string(evt.Data))
		case <-ticker.C:
			job, err := app.Store.GetScanJob(jobID)
			if err != nil {
				return err
			}
			fmt.Printf("  progress: %d/%d brokers\n", job.CompletedBrokers, job.TotalBrokers)
			if job.Status.Terminal() {
				return printScanSummary(app, job)
			}
		}
	}
}

func printScanSummary(app *App, job *models.ScanJob) error {
	findings, err := app.Store.ListFindings(job.ID)
	if err != nil {
		return err
	}
	scans, err := app.Store.ListBrokerScans(job.ID)
	if err != nil {
		return err
	}

	counts := map[models.BrokerScanStatus]int{}
	for _, bs := range scans {
		counts[bs.Status]++
	}
	fmt.Printf("\nScan %s: %s\n", job.ID, job.Status)
	fmt.Printf("  brokers: %d success, %d failed, %d skipped\n",
		counts[models.BrokerScanSuccess], counts[models.BrokerScanFailed], counts[models.BrokerScanSkipped])
	fmt.Printf("  findings: %d (pending your verification)\n", len(findings))
	for _, f := range findings {
		fmt.Printf("    %s  %s  %s\n", f.ID, f.BrokerID, f.ListingURL)
	}
	return nil
}

func listScans(engineVersion string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	jobs, err := app.Store.ListScanJobs(20)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("No scan jobs recorded.")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%s  %-11s  %d/%d brokers  started %s\n",
			job.ID, job.Status, job.CompletedBrokers, job.TotalBrokers,
			job.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func scanStatus(engineVersion, jobID string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := app.Store.GetScanJob(jobID)
	if err != nil {
		return err
	}
	scans, err := app.Store.ListBrokerScans(jobID)
	if err != nil {
		return err
	}

	fmt.Printf("Scan %s: %s (%d/%d brokers)\n", job.ID, job.Status, job.CompletedBrokers, job.TotalBrokers)
	for _, bs := range scans {
		line := fmt.Sprintf("  %-24s %-10s findings=%d", bs.BrokerID, bs.Status, bs.FindingsCount)
		if bs.ErrorMessage != "" {
			line += "  " + bs.ErrorMessage
		}
		fmt.Println(line)
	}
	return nil
}
