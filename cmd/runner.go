package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subshift/internal/services"
	"github.com/desertthunder/subshift/internal/shared"
	"github.com/desertthunder/subshift/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	// newAccount builds the rate-limited client for one credential. Tests
	// substitute it to run commands against in-memory accounts.
	newAccount func(key string, opts services.AccountOpts) (services.API, error)
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Logger     *log.Logger
	Output     io.Writer
	NewAccount func(key string, opts services.AccountOpts) (services.API, error)
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.NewAccount == nil {
		opts.NewAccount = func(key string, accountOpts services.AccountOpts) (services.API, error) {
			return services.NewAccount(key, accountOpts)
		}
	}

	return &Runner{
		config:     opts.Config,
		logger:     opts.Logger,
		output:     opts.Output,
		newAccount: opts.NewAccount,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		copyCommand, confirmCommand, revertCommand, touchCommand, resendCommand, accountsCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// setVerbosity maps the logging flags onto the shared logger. The default
// keeps routine per-object progress out of the terminal; the report at the
// end carries the summary.
func (r *Runner) setVerbosity(cmd *cli.Command) {
	switch {
	case cmd.Bool("very-verbose") || cmd.Bool("debug"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.InfoLevel)
	default:
		shared.SetLogLevel(r.logger, log.WarnLevel)
	}
}

// loadConfig reads the --config file when it exists, falling back to the
// embedded defaults otherwise.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	path := cmd.String("config")
	if path == "" {
		path = "config.toml"
	}
	if _, err := os.Stat(path); err == nil {
		if config, err := shared.LoadConfig(path); err == nil {
			r.config = config
		} else {
			r.logger.Warn("failed to load config, using defaults", "path", path, "error", err)
		}
	}
	return r.config
}

// connect resolves both credentials, builds the two rate-limited accounts and
// the session options the command flags ask for. With --dry-run both accounts
// are wrapped so no write ever leaves the process.
func (r *Runner) connect(ctx context.Context, cmd *cli.Command) (services.API, services.API, tasks.SessionOpts, error) {
	r.setVerbosity(cmd)
	config := r.loadConfig(cmd)
	none := tasks.SessionOpts{}

	fromKey, err := shared.ResolveKey(cmd.String("from"), shared.EnvSourceKey, config.Accounts.From)
	if err != nil {
		return nil, nil, none, fmt.Errorf("source account: %w", err)
	}
	toKey, err := shared.ResolveKey(cmd.String("to"), shared.EnvTargetKey, config.Accounts.To)
	if err != nil {
		return nil, nil, none, fmt.Errorf("target account: %w", err)
	}
	if fromKey == toKey {
		return nil, nil, none, fmt.Errorf("%w: source and target are the same account", shared.ErrInvalidInput)
	}

	accountOpts := services.AccountOpts{
		Logger:       r.logger,
		MaxRunning:   config.Limits.MaxRunning,
		PerSecond:    config.Limits.PerSecond,
		ListPageSize: config.Limits.ListPageSize,
	}
	source, err := r.newAccount(fromKey, accountOpts)
	if err != nil {
		return nil, nil, none, fmt.Errorf("source account: %w", err)
	}
	target, err := r.newAccount(toKey, accountOpts)
	if err != nil {
		return nil, nil, none, fmt.Errorf("target account: %w", err)
	}

	if cmd.Bool("dry-run") {
		r.logger.Info("dry run, nothing will be written")
		source = services.NewDryRun(source, r.logger)
		target = services.NewDryRun(target, r.logger)
	}

	delayHours := cmd.Float64("delay")
	if delayHours <= 0 {
		delayHours = config.Migration.DelayHours
	}

	opts := tasks.SessionOpts{
		Delay:       time.Duration(delayHours * float64(time.Hour)),
		PauseSource: config.Migration.PauseSource,
		MaxRunning:  config.Limits.MaxRunning,
		Logger:      r.logger,
	}
	return source, target, opts, nil
}

// renderProgress drains a progress channel onto the terminal. Callers close
// the channel when the operation returns.
func (r *Runner) renderProgress(progress <-chan tasks.ProgressUpdate) {
	for update := range progress {
		switch update.Phase {
		case tasks.Plan:
			r.writePlain("📋 %s\n", update.Message)
		case tasks.CopyCatalog:
			r.writePlain("📦 %s\n", update.Message)
		case tasks.CopySubscriptions, tasks.ConfirmHandover, tasks.TouchObjects, tasks.ResendEvents:
			r.writePlain("   %s\n", update.Message)
		case tasks.RevertHandover:
			r.writePlain("↩  %s\n", update.Message)
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
