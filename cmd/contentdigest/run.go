package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ContentDigest/internal/usecase"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and run tasks until interrupted",
	RunE:  runScheduler,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run the pipeline a single time and print the outcome",
	RunE:  runOnce,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete cached content older than the retention window",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(runCmd, onceCmd, sweepCmd)
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out, runErr := a.RunOnce(ctx)
	printOutcome(cmd, out)

	var perr *usecase.PhaseError
	if errors.As(runErr, &perr) {
		return fmt.Errorf("run failed while %s: %w", perr.Phase, perr.Err)
	}
	return runErr
}

func printOutcome(cmd *cobra.Command, out usecase.Outcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "status:     %s\n", out.Status)
	fmt.Fprintf(w, "phase:      %s\n", out.Phase)
	fmt.Fprintf(w, "collected:  %d (cached %d)\n", out.Collected, out.FromCache)
	fmt.Fprintf(w, "retained:   %d\n", out.Retained)
	if out.DigestID != "" {
		fmt.Fprintf(w, "digest:     %s\n", out.DigestID)
	}
	for _, f := range out.FailedKeys {
		fmt.Fprintf(w, "failed key: %s %s: %v\n", f.SourceType, f.Key, f.Err)
	}
	for _, d := range out.Distribution {
		status := "ok"
		if !d.Success {
			status = fmt.Sprintf("failed: %v", d.Err)
		}
		fmt.Fprintf(w, "channel:    %s %s %s\n", d.Channel, status, d.URL)
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Sweep(cmd.Context())
}
