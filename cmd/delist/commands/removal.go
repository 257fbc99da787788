package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func NewRemovalCommand(engineVersion string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "removal",
		Short: "File and track opt-out requests",
	}

	create := &cobra.Command{
		Use:   "create [finding-id...]",
		Short: "Create Pending removal attempts for confirmed findings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createAttempts(engineVersion, args)
		},
	}

	process := &cobra.Command{
		Use:   "process [attempt-id...]",
		Short: "Submit pending removal attempts",
		Long: `Submit the named attempts, or with --all every Pending attempt that is
not parked on a CAPTCHA. Blocks until the batch drains.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return processAttempts(engineVersion, args)
		},
	}
	process.Flags().Bool("all", false, "process every eligible Pending attempt")
	_ = viper.BindPFlag("removal.all", process.Flags().Lookup("all"))

	retry := &cobra.Command{
		Use:   "retry [attempt-id]",
		Short: "Re-queue one Failed attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return retryAttempt(engineVersion, args[0])
		},
	}

	queues := &cobra.Command{
		Use:   "queues",
		Short: "Show the CAPTCHA and failed queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showQueues(engineVersion)
		},
	}

	complete := &cobra.Command{
		Use:   "complete [attempt-id]",
		Short: "Mark a Submitted attempt Completed after external confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return completeAttempt(engineVersion, args[0])
		},
	}

	cmd.AddCommand(create, process, retry, queues, complete)
	return cmd
}

func createAttempts(engineVersion string, findingIDs []string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	ids, err := app.Pool.CreateRemovalAttempts(findingIDs)
	for _, id := range ids {
		fmt.Printf("created attempt %s\n", id)
	}
	return err
}

func processAttempts(engineVersion string, attemptIDs []string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	if n, err := app.Pool.ReconcileStale(); err != nil {
		return err
	} else if n > 0 {
		logrus.Infof("Recovered %d stale attempts", n)
	}

	if viper.GetBool("removal.all") {
		pending, err := app.Store.PendingAttempts()
		if err != nil {
			return err
		}
		for _, a := range pending {
			attemptIDs = append(attemptIDs, a.ID)
		}
	}
	if len(attemptIDs) == 0 {
		fmt.Println("Nothing to process.")
		return nil
	}

	result := app.Pool.ProcessBatch(context.Background(), attemptIDs)
	fmt.Printf("Batch %s: queued %d of %d attempts\n", result.JobID, result.Queued, result.Total)

	app.Pool.Wait()
	return showQueuesFrom(app)
}

func retryAttempt(engineVersion, attemptID string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Pool.Retry(context.Background(), attemptID); err != nil {
		return err
	}
	logrus.Infof("Retry queued for attempt %s", attemptID)
	app.Pool.Wait()

	attempt, err := app.Store.GetRemovalAttempt(attemptID)
	if err != nil {
		return err
	}
	fmt.Printf("attempt %s: %s", attempt.ID, attempt.Status)
	if attempt.ErrorMessage != "" {
		fmt.Printf("  %s", attempt.ErrorMessage)
	}
	fmt.Println()
	return nil
}

func completeAttempt(engineVersion, attemptID string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Store.MarkCompleted(attemptID, time.Now().UTC()); err != nil {
		return err
	}
	fmt.Printf("attempt %s marked Completed\n", attemptID)
	return nil
}

func showQueues(engineVersion string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()
	return showQueuesFrom(app)
}

func showQueuesFrom(app *App) error {
	captcha, err := app.Store.CaptchaQueue()
	if err != nil {
		return err
	}
	failed, err := app.Store.FailedQueue()
	if err != nil {
		return err
	}

	fmt.Printf("CAPTCHA queue (%d, oldest first):\n", len(captcha))
	for _, a := range captcha {
		fmt.Printf("  %s  %-20s  %s\n", a.ID, a.BrokerID, a.CaptchaURL())
	}
	fmt.Printf("Failed queue (%d, newest first):\n", len(failed))
	for _, a := range failed {
		fmt.Printf("  %s  %-20s  %s\n", a.ID, a.BrokerID, a.ErrorMessage)
	}
	return nil
}
