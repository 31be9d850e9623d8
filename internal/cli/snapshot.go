package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/reddit-digest/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Read archived daily snapshots",
	}

	get := &cobra.Command{
		Use:   "get <subreddit> <YYYY-MM-DD>",
		Short: "Print the snapshot of a day, curating a fresh one if none exists",
		Args:  cobra.ExactArgs(2),
		Run:   runSnapshotGet,
	}
	get.Flags().StringP("period", "p", "", "Period: 1d, 1week or 1month (default: latest that day)")

	dates := &cobra.Command{
		Use:   "dates <subreddit>",
		Short: "List archived dates, newest first",
		Args:  cobra.ExactArgs(1),
		Run:   runSnapshotDates,
	}

	cmd.AddCommand(get, dates)
	RootCmd.AddCommand(cmd)
}

func runSnapshotGet(cmd *cobra.Command, args []string) {
	period, _ := cmd.Flags().GetString("period")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	var p model.Period
	if period != "" {
		p = model.ParsePeriod(period)
	}
	data, err := a.digest.Snapshot(cmd.Context(), args[0], args[1], p)
	if err != nil {
		exitErr("snapshot", err)
	}
	printJSON(json.RawMessage(data))
}

func runSnapshotDates(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	dates, err := a.digest.Dates(cmd.Context(), args[0])
	if err != nil {
		exitErr("dates", err)
	}
	if formatFlag == "text" {
		for _, d := range dates {
			fmt.Println(d)
		}
		return
	}
	printJSON(map[string]any{"subreddit": model.NormalizeSubreddit(args[0]), "dates": dates})
}
