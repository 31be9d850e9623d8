package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/reddit-digest/internal/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: $HTTP_ADDR or :8000)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		exitErr("open app", err)
	}
	defer a.Close()

	if addr == "" {
		addr = a.cfg.HTTPAddr
	}
	srv := server.New(server.Config{
		Logger:  a.log,
		Bind:    addr,
		Digest:  a.digest,
		Prompts: a.prompts,
		Auth:    a.verifier(),
		DB:      a.db,
	})
	if err := srv.Run(ctx); err != nil {
		exitErr("serve", err)
	}
}
