package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var digestsLimit int

var digestsCmd = &cobra.Command{
	Use:   "digests",
	Short: "Inspect persisted digests",
}

var digestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent digests",
	RunE:  runDigestsList,
}

var digestsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one digest",
	Args:  cobra.ExactArgs(1),
	RunE:  runDigestsShow,
}

func init() {
	digestsListCmd.Flags().IntVarP(&digestsLimit, "limit", "n", 10, "Number of digests to list")
	digestsCmd.AddCommand(digestsListCmd, digestsShowCmd)
	rootCmd.AddCommand(digestsCmd)
}

func runDigestsList(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	digests, err := a.Digests().ListRecent(cmd.Context(), digestsLimit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tITEMS\tSOCIAL\tCHATOPS\tTITLE")
	for _, d := range digests {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%t\t%s\n",
			d.ID, d.CreatedAt.Local().Format(time.DateTime), d.ItemCount, d.PostedToSocial, d.SentToChatOps, d.Title)
	}
	return tw.Flush()
}

func runDigestsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.Digests().Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s\n\n", d.Title)
	fmt.Fprintf(w, "window:  %s .. %s\n", d.WindowStart.Local().Format(time.DateTime), d.WindowEnd.Local().Format(time.DateTime))
	fmt.Fprintf(w, "items:   %d %v\n", d.ItemCount, d.SourceCounts)
	fmt.Fprintf(w, "model:   %s (%d tokens, $%.4f)\n", d.AIModel, d.TokensUsed, d.CostUSD)
	if d.SocialURL != "" {
		fmt.Fprintf(w, "social:  %s\n", d.SocialURL)
	}
	fmt.Fprintf(w, "\n%s\n\n%s\n", d.Summary, d.Content)
	return nil
}
