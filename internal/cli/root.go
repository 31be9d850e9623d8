// Package cli implements the reddit-digest CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath       string
	cacheBackend string
	formatFlag   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "reddit-digest",
	Short: "Curated subreddit digests with cached AI summaries",
	Long:  "Fetches top subreddit posts, keeps the ones worth reading, caches them for a day and summarizes them with an LLM.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path or URL (default: $DATABASE_URL or ~/.reddit-digest/digest.db)")
	RootCmd.PersistentFlags().StringVar(&cacheBackend, "cache", "", "Cache backend: memory, file or sql (default: $CACHE_BACKEND or sql)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
