package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/subshift/internal/shared"
)

// Setup writes a starter configuration file for the operator to fill in.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	r.logger.Info("config file created", "path", configPath)

	r.writePlain("✓ Wrote %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Put the source and target secret keys under [accounts]\n")
	r.writePlain("2. Run 'subshift accounts' to check both credentials\n")
	r.writePlain("3. Run 'subshift copy --dry-run' to preview the migration\n")

	return nil
}

// Accounts validates both credentials and reports which account each one
// reaches, without touching any billing object.
func (r *Runner) Accounts(ctx context.Context, cmd *cli.Command) error {
	source, target, _, err := r.connect(ctx, cmd)
	if err != nil {
		return err
	}

	sourceIdentity, err := source.Validate(ctx)
	if err != nil {
		return fmt.Errorf("source account: %w", err)
	}
	targetIdentity, err := target.Validate(ctx)
	if err != nil {
		return fmt.Errorf("target account: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]string{
			"source": sourceIdentity,
			"target": targetIdentity,
		}, true)
	}

	r.writePlain("source: %s\n", sourceIdentity)
	r.writePlain("target: %s\n", targetIdentity)
	return nil
}
