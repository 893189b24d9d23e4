// Command referrals serves the referral provisioning API and exposes
// migration and one-off provisioning helpers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:           "referrals",
	Short:         "Referral provisioning service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations and start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded migrations and validate the schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable trace logging")
	rootCmd.AddCommand(serveCmd, migrateCmd, provisionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := WithPersistence(ctx, app, true); err != nil {
		return err
	}
	if err := WithReferralService(ctx, app); err != nil {
		return err
	}
	if err := WithHTTPServer(ctx, app); err != nil {
		return err
	}

	serverCfg := app.Config().GetServer()
	addr := fmt.Sprintf("%s:%s", serverCfg.Host, serverCfg.Port)
	app.GetLogger("server").Info("starting server", "addr", addr)
	app.srv.Serve(addr)

	sig := WaitExitSignal()
	app.GetLogger("server").Info("shutting down", "signal", sig.String())
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := newApp(ctx, debugFlag)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := WithPersistence(ctx, app, true); err != nil {
		return err
	}
	app.GetLogger("migrate").Info("schema up to date", "dialect", app.dialect)
	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
