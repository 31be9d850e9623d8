package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/reddit-digest/internal/cache"
	"github.com/rcliao/reddit-digest/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print a live cache entry",
		Run:   runCacheGet,
	}
	get.Flags().StringP("ns", "n", cache.SubjectNamespace, "Namespace")
	get.Flags().StringP("key", "k", "", "Key (required)")
	get.MarkFlagRequired("key")

	set := &cobra.Command{
		Use:   "set",
		Short: "Store a JSON payload (from --data or stdin)",
		Run:   runCacheSet,
	}
	set.Flags().StringP("ns", "n", "", "Namespace (required)")
	set.Flags().StringP("key", "k", "", "Key (required)")
	set.Flags().String("data", "", "JSON payload (default: read stdin)")
	set.Flags().Duration("ttl", 24*time.Hour, "Time to live")
	set.MarkFlagRequired("ns")
	set.MarkFlagRequired("key")

	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired records and entries",
		Run:   runCachePurge,
	}
	purge.Flags().StringP("ns", "n", cache.SubjectNamespace, "Namespace")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts per namespace",
		Run:   runCacheStats,
	}

	feed := &cobra.Command{
		Use:   "feed",
		Short: "Print the best cached result of every subreddit",
		Run:   runCacheFeed,
	}
	feed.Flags().StringP("period", "p", string(model.DefaultPeriod), "Period: 1d, 1week or 1month")

	cmd.AddCommand(get, set, purge, stats, feed)
	RootCmd.AddCommand(cmd)
}

func runCacheGet(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	key, _ := cmd.Flags().GetString("key")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	raw, ok := a.cache.Get(cmd.Context(), ns, key)
	if !ok {
		fmt.Fprintln(os.Stderr, "not found")
		os.Exit(1)
	}
	printJSON(raw)
}

func runCacheSet(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")
	key, _ := cmd.Flags().GetString("key")
	data, _ := cmd.Flags().GetString("data")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	payload := []byte(data)
	if data == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		payload = b
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if err := a.cache.Set(cmd.Context(), ns, key, json.RawMessage(payload), ttl); err != nil {
		exitErr("cache set", err)
	}
	printJSON(map[string]any{"namespace": ns, "key": key, "expiresAt": time.Now().Add(ttl).UTC()})
}

func runCachePurge(cmd *cobra.Command, args []string) {
	ns, _ := cmd.Flags().GetString("ns")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	n, err := a.cache.Purge(cmd.Context(), ns)
	if err != nil {
		exitErr("purge", err)
	}
	printJSON(map[string]any{"namespace": ns, "removed": n})
}

func runCacheStats(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	stats, err := a.cache.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(map[string]any{"backend": a.cfg.CacheBackend, "namespaces": stats})
}

func runCacheFeed(cmd *cobra.Command, args []string) {
	period, _ := cmd.Flags().GetString("period")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	p := model.ParsePeriod(period)
	items, err := a.digest.Feed(cmd.Context(), p)
	if err != nil {
		exitErr("feed", err)
	}
	printJSON(map[string]any{"duration": p, "items": items})
}
