package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/prerender/config"
	"github.com/use-agent/prerender/detector"
	"github.com/use-agent/prerender/logging"
	"github.com/use-agent/prerender/models"
	"github.com/use-agent/prerender/output"
	"github.com/use-agent/prerender/render"
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, defaultApp(), nil)
}

// run executes the command tree with args (nil means os.Args). Every
// failure is reported as exactly one operator line; diagnostics go to
// stderr.
func run(ctx context.Context, a *app, args []string) int {
	// Until the configuration is known, report in the CLI's plain format.
	slog.SetDefault(logging.New(a.stdout, a.stderr, config.LogConfig{}, "plain"))

	root := newRootCmd(a)
	if args != nil {
		root.SetArgs(args)
	}

	err := root.ExecuteContext(ctx)
	if err != nil {
		re := models.AsRenderError(err)
		slog.Error(re.Message, logging.Operator(), "code", re.Code)
	}
	return models.ExitCode(err)
}

type rootFlags struct {
	poll      string
	logLevel  string
	logFormat string
}

func newRootCmd(a *app) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "render [--poll TIMEOUT] URL FILEPATH",
		Short: "Render a page in headless Chromium and save its HTML",
		Long: `render opens URL in a headless browser and saves the rendered document to FILEPATH.

Without --poll the document is saved as soon as the page has loaded.
With --poll the page must publish window.serverRenderer = {status: <code>}
within TIMEOUT seconds after loading; the saved document is then prefixed
with <!-- http_status_code=<code> -->.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseRenderArgs(cmd.Flags().Changed("poll"), f.poll, args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(a, f, "plain")
			if err != nil {
				return err
			}
			return renderToFile(cmd.Context(), a, cfg, req)
		},
	}

	cmd.Flags().StringVar(&f.poll, "poll", "", "wait up to `TIMEOUT` seconds for the page to report completion")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&f.logFormat, "log-format", "", "log format: plain, text, json")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		if c.HasParent() {
			return models.NewRenderError(models.ErrCodeUsage, err.Error(), err)
		}
		return models.NewRenderError(models.ErrCodeUsage, models.MsgPollUsage, err)
	})

	cmd.SetOut(a.stdout)
	cmd.AddCommand(newServeCmd(a, &f))
	return cmd
}

// parseRenderArgs validates the invocation before anything is launched.
// Arity is checked before the timeout value.
func parseRenderArgs(polling bool, rawTimeout string, args []string) (models.RenderRequest, error) {
	if !polling {
		if len(args) != 2 {
			return models.RenderRequest{}, models.NewRenderError(models.ErrCodeUsage, models.MsgFixedUsage, nil)
		}
		return models.RenderRequest{URL: args[0], DestinationPath: args[1]}, nil
	}

	if len(args) != 2 {
		return models.RenderRequest{}, models.NewRenderError(models.ErrCodeUsage, models.MsgPollUsage, nil)
	}
	timeout, err := models.ParseTimeout(rawTimeout)
	if err != nil {
		return models.RenderRequest{}, err
	}
	return models.RenderRequest{URL: args[0], DestinationPath: args[1], TimeoutSeconds: timeout}, nil
}

// loadConfig reads the configuration and installs the logger it selects.
// Command-line log flags win over the configuration.
func loadConfig(a *app, f rootFlags, fallbackFormat string) (*config.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, models.NewRenderError(models.ErrCodeInvalidInput, err.Error(), err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	slog.SetDefault(logging.New(a.stdout, a.stderr, cfg.Log, fallbackFormat))
	return cfg, nil
}

func newDetector(cfg config.RenderConfig) *detector.Detector {
	return detector.New(
		detector.WithPollInterval(cfg.PollInterval),
		detector.WithSignalGlobal(cfg.SignalGlobal),
	)
}

// renderToFile performs one render and persists a successful outcome.
// Nothing is written unless the page succeeded.
func renderToFile(ctx context.Context, a *app, cfg *config.Config, req models.RenderRequest) error {
	slog.Info("Opening page "+req.URL, logging.Operator(), "url", req.URL, "mode", req.Mode())

	// One render per process needs one tab.
	browserCfg := cfg.Browser
	browserCfg.MaxPages = 1

	eng, err := a.launch(browserCfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	svc := render.NewService(eng, newDetector(cfg.Render), nil)
	res, err := svc.Render(ctx, req)
	if err != nil {
		return err
	}
	if err := res.Outcome.Err(); err != nil {
		return err
	}

	slog.Info("Saving content to "+req.DestinationPath, logging.Operator(), "path", req.DestinationPath)
	return output.NewWriter(a.fs).WriteOutcome(req.DestinationPath, res.Outcome)
}
