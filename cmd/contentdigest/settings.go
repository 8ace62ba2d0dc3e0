package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ContentDigest/internal/infrastructure/storage"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage runtime overrides picked up by the next pipeline run",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show stored overrides and the effective run configuration",
	RunE:  runSettingsList,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store an override",
	Long:  "Store an override. Known keys:\n  " + strings.Join(storage.KnownSettings(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove an override and fall back to the config file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsUnset,
}

func init() {
	settingsCmd.AddCommand(settingsListCmd, settingsSetCmd, settingsUnsetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsList(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	settings, err := a.Settings().List(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tUPDATED")
	for _, s := range settings {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Key, s.Value, s.UpdatedAt.Local().Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rc := a.RunConfig(cmd.Context())
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\neffective: min_quality=%.2f max_age=%s analysis=%s concurrency=%d social=%t chatops=%t sources=%v\n",
		rc.MinQuality, rc.MaxContentAge, rc.AnalysisType, rc.CollectConcurrency, rc.DistributeSocial, rc.DistributeChatOps, rc.Sources)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Settings().Set(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
	return nil
}

func runSettingsUnset(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Settings().Delete(cmd.Context(), args[0])
}
