package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/reddit-digest/internal/digest"
	"github.com/rcliao/reddit-digest/internal/model"
)

func init() {
	research := &cobra.Command{
		Use:   "research <subreddit>",
		Short: "Fetch (or read from cache) the curated top posts of a subreddit",
		Args:  cobra.ExactArgs(1),
		Run:   runResearch,
	}
	addRequestFlags(research)

	summary := &cobra.Command{
		Use:   "summary <subreddit>",
		Short: "Stream an AI summary of a subreddit's curated posts",
		Args:  cobra.ExactArgs(1),
		Run:   runSummary,
	}
	addRequestFlags(summary)
	summary.Flags().String("prompt", "", "Override the stored prompt")

	RootCmd.AddCommand(research, summary)
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("limit", "l", digest.DefaultLimit, "Max posts")
	cmd.Flags().StringP("period", "p", string(model.DefaultPeriod), "Period: 1d, 1week or 1month")
}

func requestFromFlags(cmd *cobra.Command, subreddit string) digest.Request {
	limit, _ := cmd.Flags().GetInt("limit")
	period, _ := cmd.Flags().GetString("period")
	return digest.Request{Subreddit: subreddit, Limit: limit, Period: model.ParsePeriod(period)}
}

func runResearch(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	res, err := a.digest.Research(cmd.Context(), requestFromFlags(cmd, args[0]))
	if err != nil {
		exitErr("research", err)
	}

	if formatFlag == "text" {
		fmt.Printf("r/%s (%s, cached %s)\n", res.Subreddit, res.Period.Label(), res.CachedAt.Format("2006-01-02 15:04"))
		for _, p := range res.TopPosts {
			fmt.Printf("%6.0f  %s  [%d comments]\n", p.Score, p.Title, len(p.Comments))
		}
		return
	}
	printJSON(res)
}

func runSummary(cmd *cobra.Command, args []string) {
	prompt, _ := cmd.Flags().GetString("prompt")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	err = a.digest.Summary(cmd.Context(), digest.SummaryRequest{
		Request: requestFromFlags(cmd, args[0]),
		Prompt:  prompt,
	}, os.Stdout)
	fmt.Println()
	if err != nil {
		exitErr("summary", err)
	}
}
