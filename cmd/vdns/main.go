// Command vdns runs the recursive/forwarding DNS server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahdark-oss/vdns/core"
	_ "github.com/ahdark-oss/vdns/plugin/all"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vdns",
		Short: "A programmable recursive/forwarding DNS server.",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the DNS server from a configuration file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return core.Run(ctx, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the main configuration file")
	return cmd
}
