// Command domu is the command-line client of the domu expense API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"domu/internal/app"
	"domu/internal/backend"
	"domu/internal/cli"
	"domu/internal/config"
	"domu/internal/log"
)

var version = "dev"

// runtime holds what a command needs once configuration is loaded.
type runtime struct {
	envFile string

	cfg     *config.Config
	logger  *log.Logger
	backend *backend.Result
	app     *app.App
}

func (rt *runtime) init(ctx context.Context) error {
	if rt.app != nil {
		return nil
	}
	cli.LoadEnvFile(rt.envFile)

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	logger, err := cli.SetupLogger(cfg)
	if err != nil {
		return err
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return err
	}

	opts := app.Options{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.RequestTimeout,
		SummaryTTL:  cfg.SummaryCacheTTL,
		Credentials: res.Credentials,
		Exporter:    res.Exporter,
		Logger:      logger,
	}
	if res.Events != nil {
		opts.Events = res.Events
	}
	a, err := app.New(ctx, opts)
	if err != nil {
		_ = res.Cleanup()
		return err
	}

	rt.cfg, rt.logger, rt.backend, rt.app = cfg, logger, res, a
	return nil
}

func (rt *runtime) close() {
	if rt.app != nil {
		m := rt.app.Client.Metrics()
		rt.logger.Debug("API usage",
			"requests", m.TotalRequests,
			"failed", m.FailedRequests,
			"avg_response_us", m.AverageResponseTime)
		rt.app.Close()
	}
	if rt.backend != nil {
		if err := rt.backend.Cleanup(); err != nil {
			rt.logger.Error("Failed to release resources", log.FieldError, err)
		}
	}
}

// guarded wraps a run function with the access guard check for target.
func (rt *runtime) guarded(target string, run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := rt.app.Authorize(target); err != nil {
			return err
		}
		return run(cmd, args)
	}
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "domu",
		Short:         "Track condominium expenses from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(loginCmd(rt))
	root.AddCommand(logoutCmd(rt))
	root.AddCommand(statusCmd(rt))
	root.AddCommand(expensesCmd(rt))
	root.AddCommand(categoriesCmd(rt))
	root.AddCommand(summaryCmd(rt))
	root.AddCommand(exportCmd(rt))
	root.AddCommand(watchCmd(rt))
	return root
}

// execute runs the command tree with the given arguments and streams and
// returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rt := &runtime{}
	defer rt.close()

	root := newRootCmd(rt)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
