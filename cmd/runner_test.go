package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/subshift/internal/models"
	"github.com/desertthunder/subshift/internal/services"
	"github.com/desertthunder/subshift/internal/shared"
	tu "github.com/desertthunder/subshift/internal/testing"
)

const (
	sourceKey = "sk_test_source"
	targetKey = "sk_test_target"
)

// newTestRunner wires a runner whose accounts are in-memory mocks keyed by
// credential, so commands run end to end without a network.
func newTestRunner(source, target *tu.MockAPI) (*Runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Logger: log.New(io.Discard),
		Output: out,
		NewAccount: func(key string, opts services.AccountOpts) (services.API, error) {
			switch key {
			case sourceKey:
				return source, nil
			case targetKey:
				return target, nil
			}
			return nil, fmt.Errorf("%w: unknown test key", shared.ErrInvalidCredentials)
		},
	})
	return runner, out
}

func runCommand(t *testing.T, runner *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "subshift", Commands: runner.register()}
	return app.Run(context.Background(), append([]string{"subshift"}, args...))
}

// seedAccounts builds the canonical scenario: one product, one monthly price,
// one active subscription, and a customer present on both accounts with the
// same card.
func seedAccounts(t *testing.T) (*tu.MockAPI, *tu.MockAPI) {
	t.Helper()
	periodEnd := time.Now().Add(30 * 24 * time.Hour).Unix()

	source := tu.NewMockAPI()
	source.AccountLabel = "Origin Co (test)"
	source.SeedProduct("prod_1", "Pro Plan", nil)
	source.SeedPrice("price_1", "prod_1", "usd", 2500, stripe.PriceRecurringIntervalMonth, nil)
	source.SeedCustomer("cus_1", "ada@example.com")
	source.SeedCardPaymentMethod("pm_src", "cus_1", "visa", "4242", 12, 2030)
	source.SetDefaultPaymentMethod("cus_1", "pm_src")
	source.SeedSubscription("sub_1", "cus_1", stripe.SubscriptionStatusActive, periodEnd, source.Prices["price_1"])

	target := tu.NewMockAPI()
	target.AccountLabel = "Destination Co (test)"
	target.SeedCustomer("cus_1", "ada@example.com")
	target.SeedCardPaymentMethod("pm_tgt", "cus_1", "visa", "4242", 12, 2030)

	return source, target
}

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv(shared.EnvSourceKey, "")
	t.Setenv(shared.EnvTargetKey, "")
}

func TestNewRunner(t *testing.T) {
	t.Run("Fills In Defaults", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		if runner.config == nil {
			t.Error("expected a default config")
		}
		if runner.logger == nil {
			t.Error("expected a default logger")
		}
		if runner.output == nil {
			t.Error("expected a default output writer")
		}
		if runner.newAccount == nil {
			t.Error("expected a default account constructor")
		}
	})

	t.Run("Keeps Provided Options", func(t *testing.T) {
		out := &bytes.Buffer{}
		config := shared.DefaultConfig()
		runner := NewRunner(RunnerOpts{Config: config, Output: out})

		if runner.config != config {
			t.Error("provided config was replaced")
		}
		if runner.output != out {
			t.Error("provided output was replaced")
		}
	})

	t.Run("Registers Every Command", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		want := []string{"copy", "confirm", "revert", "touch", "resend", "accounts", "setup"}
		if len(commands) != len(want) {
			t.Fatalf("expected %d commands, got %d", len(want), len(commands))
		}
		for i, name := range want {
			if commands[i].Name != name {
				t.Errorf("command %d: expected %s, got %s", i, name, commands[i].Name)
			}
		}
	})
}

func TestWriters(t *testing.T) {
	t.Run("Writes Pretty JSON", func(t *testing.T) {
		runner, out := newTestRunner(nil, nil)

		if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]string
		if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded["key"] != "value" {
			t.Errorf("unexpected payload: %v", decoded)
		}
		if !strings.Contains(out.String(), "\n  ") {
			t.Error("expected indented output")
		}
	})

	t.Run("Rejects Unmarshalable Data", func(t *testing.T) {
		runner, _ := newTestRunner(nil, nil)

		err := runner.writeJSON(make(chan int), false)
		if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
			t.Errorf("expected marshal error, got %v", err)
		}
	})

	t.Run("Writes Plain Text", func(t *testing.T) {
		runner, out := newTestRunner(nil, nil)

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.String() != "hello world" {
			t.Errorf("unexpected output: %q", out.String())
		}
	})
}

func TestCopyCommand(t *testing.T) {
	t.Run("Migrates Everything", func(t *testing.T) {
		source, target := seedAccounts(t)
		runner, out := newTestRunner(source, target)

		err := runCommand(t, runner, "copy", "--from", sourceKey, "--to", targetKey, "--yes")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(target.Products) != 1 || len(target.Prices) != 1 || len(target.Subscriptions) != 1 {
			t.Fatalf("expected 1/1/1 on target, got %d/%d/%d",
				len(target.Products), len(target.Prices), len(target.Subscriptions))
		}
		var tagged bool
		for _, sub := range target.Subscriptions {
			if models.SourceID(sub.Metadata) == "sub_1" {
				tagged = true
			}
		}
		if !tagged {
			t.Error("target subscription not tagged with its source id")
		}
		if !strings.Contains(out.String(), "Destination Co (test)") {
			t.Errorf("report missing the target label: %q", out.String())
		}
	})

	t.Run("Dry Run Writes Nothing", func(t *testing.T) {
		source, target := seedAccounts(t)
		runner, _ := newTestRunner(source, target)

		err := runCommand(t, runner, "copy", "--from", sourceKey, "--to", targetKey, "--dry-run", "--yes")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if source.Mutations != 0 || target.Mutations != 0 {
			t.Errorf("expected zero mutations, got source %d target %d",
				source.Mutations, target.Mutations)
		}
		if len(target.Subscriptions) != 0 {
			t.Errorf("expected no target subscriptions, got %d", len(target.Subscriptions))
		}
	})

	t.Run("Rejects Missing Credentials", func(t *testing.T) {
		clearKeyEnv(t)
		runner, _ := newTestRunner(tu.NewMockAPI(), tu.NewMockAPI())

		err := runCommand(t, runner, "copy", "--yes")
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Rejects Identical Accounts", func(t *testing.T) {
		clearKeyEnv(t)
		runner, _ := newTestRunner(tu.NewMockAPI(), tu.NewMockAPI())

		err := runCommand(t, runner, "copy", "--from", sourceKey, "--to", sourceKey, "--yes")
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestConfirmCommand(t *testing.T) {
	t.Run("Cancels the Source After Copy", func(t *testing.T) {
		source, target := seedAccounts(t)
		runner, _ := newTestRunner(source, target)

		if err := runCommand(t, runner, "copy", "--from", sourceKey, "--to", targetKey, "--yes"); err != nil {
			t.Fatalf("copy: %v", err)
		}
		if err := runCommand(t, runner, "confirm", "--from", sourceKey, "--to", targetKey, "--yes"); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		if source.Subscriptions["sub_1"].Status != stripe.SubscriptionStatusCanceled {
			t.Error("source subscription still running after confirm")
		}
		for _, sub := range target.Subscriptions {
			if models.SourceID(sub.Metadata) == "sub_1" && sub.Metadata[models.TagConfirmedAt] == "" {
				t.Error("target subscription not tagged as confirmed")
			}
		}
	})
}

func TestRevertCommand(t *testing.T) {
	t.Run("Unwinds the Migration", func(t *testing.T) {
		source, target := seedAccounts(t)
		runner, _ := newTestRunner(source, target)

		if err := runCommand(t, runner, "copy", "--from", sourceKey, "--to", targetKey, "--yes"); err != nil {
			t.Fatalf("copy: %v", err)
		}
		if err := runCommand(t, runner, "revert", "--from", sourceKey, "--to", targetKey, "--yes"); err != nil {
			t.Fatalf("revert: %v", err)
		}

		for _, sub := range target.Subscriptions {
			if models.SourceID(sub.Metadata) == "sub_1" && sub.Status != stripe.SubscriptionStatusCanceled {
				t.Error("migrated target subscription survived the revert")
			}
		}
		if source.Subscriptions["sub_1"].PauseCollection != nil {
			t.Error("source subscription still paused after revert")
		}
	})
}

func TestTouchCommand(t *testing.T) {
	t.Run("Marks Migrated Subscriptions", func(t *testing.T) {
		source, target := seedAccounts(t)
		runner, _ := newTestRunner(source, target)

		if err := runCommand(t, runner, "copy", "--from", sourceKey, "--to", targetKey, "--yes"); err != nil {
			t.Fatalf("copy: %v", err)
		}
		if err := runCommand(t, runner, "touch", "--from", sourceKey, "--to", targetKey); err != nil {
			t.Fatalf("touch: %v", err)
		}

		for _, sub := range target.Subscriptions {
			if models.SourceID(sub.Metadata) == "sub_1" && sub.Metadata[models.TagTouchedAt] == "" {
				t.Error("migrated subscription missing the touch marker")
			}
		}
	})
}

func TestAccountsCommand(t *testing.T) {
	t.Run("Prints Both Labels", func(t *testing.T) {
		source, target := seedAccounts(t)
		runner, out := newTestRunner(source, target)

		err := runCommand(t, runner, "accounts", "--from", sourceKey, "--to", targetKey)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(out.String(), "Origin Co (test)") {
			t.Errorf("missing source label: %q", out.String())
		}
		if !strings.Contains(out.String(), "Destination Co (test)") {
			t.Errorf("missing target label: %q", out.String())
		}
	})

	t.Run("Outputs JSON", func(t *testing.T) {
		source, target := seedAccounts(t)
		runner, out := newTestRunner(source, target)

		err := runCommand(t, runner, "accounts", "--from", sourceKey, "--to", targetKey, "--json")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded map[string]string
		if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded["source"] != "Origin Co (test)" || decoded["target"] != "Destination Co (test)" {
			t.Errorf("unexpected payload: %v", decoded)
		}
	})
}

func TestSetupCommand(t *testing.T) {
	t.Run("Writes a Starter Config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner, out := newTestRunner(nil, nil)

		if err := runCommand(t, runner, "setup", "--config", path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tu.AssertFileExists(t, path)
		content := tu.MustReadFile(t, path)
		if !strings.Contains(content, "[accounts]") {
			t.Error("config file missing the accounts section")
		}
		if !strings.Contains(out.String(), path) {
			t.Errorf("output missing the written path: %q", out.String())
		}
	})

	t.Run("Refuses to Overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		runner, _ := newTestRunner(nil, nil)

		if err := runCommand(t, runner, "setup", "--config", path); err != nil {
			t.Fatalf("first setup: %v", err)
		}
		err := runCommand(t, runner, "setup", "--config", path)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
