package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rcliao/reddit-digest/internal/prompts"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage per-subreddit summary prompts",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List curated subreddits and their prompts",
			Run:   runPromptsList,
		},
		&cobra.Command{
			Use:   "get <subreddit>",
			Short: "Print the prompt used for a subreddit",
			Args:  cobra.ExactArgs(1),
			Run:   runPromptsGet,
		},
		&cobra.Command{
			Use:   "set <subreddit> <prompt>",
			Short: "Store a prompt for a curated subreddit",
			Args:  cobra.ExactArgs(2),
			Run:   runPromptsSet,
		},
		&cobra.Command{
			Use:   "rm <subreddit>",
			Short: "Remove a stored prompt so the default applies",
			Args:  cobra.ExactArgs(1),
			Run:   runPromptsRm,
		},
	)
	RootCmd.AddCommand(cmd)
}

func runPromptsList(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	list := a.prompts.List(cmd.Context())
	if formatFlag == "text" {
		subs := make([]string, 0, len(list))
		for s := range list {
			subs = append(subs, s)
		}
		sort.Strings(subs)
		for _, s := range subs {
			fmt.Printf("%s\t%s\n", s, list[s])
		}
		return
	}
	printJSON(map[string]any{"defaultPrompt": prompts.DefaultTemplate, "prompts": list})
}

func runPromptsGet(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	p := a.prompts.Get(cmd.Context(), args[0])
	if formatFlag == "text" {
		fmt.Println(p.Prompt)
		return
	}
	printJSON(p)
}

func runPromptsSet(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	p, err := a.prompts.Save(cmd.Context(), args[0], args[1])
	if err != nil {
		exitErr("save prompt", err)
	}
	printJSON(p)
}

func runPromptsRm(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if err := a.prompts.Delete(cmd.Context(), args[0]); err != nil {
		exitErr("delete prompt", err)
	}
	printJSON(map[string]any{"subreddit": args[0], "removed": true})
}
