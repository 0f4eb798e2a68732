package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"github.com/desertthunder/subshift/internal/shared"
)

func TestNewAccount(t *testing.T) {
	t.Run("Rejects Empty Key", func(t *testing.T) {
		_, err := NewAccount("", AccountOpts{})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Rejects Publishable Key", func(t *testing.T) {
		_, err := NewAccount("pk_test_abcdef123456", AccountOpts{})
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("Derives Test Mode From Key Form", func(t *testing.T) {
		for _, key := range []string{"sk_test_abcdef123456", "rk_test_abcdef123456"} {
			acct, err := NewAccount(key, AccountOpts{})
			if err != nil {
				t.Fatalf("unexpected error for %s: %v", key, err)
			}
			if acct.Mode() != ModeTest {
				t.Errorf("expected test mode for %s, got %s", key, acct.Mode())
			}
		}
	})

	t.Run("Derives Live Mode From Key Form", func(t *testing.T) {
		acct, err := NewAccount("sk_live_abcdef123456", AccountOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if acct.Mode() != ModeLive {
			t.Errorf("expected live mode, got %s", acct.Mode())
		}
	})

	t.Run("Label Redacts the Key", func(t *testing.T) {
		key := "sk_test_abcdef123456"
		acct, err := NewAccount(key, AccountOpts{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		label := acct.Label()
		if strings.Contains(label, key) {
			t.Errorf("label %q leaks the full key", label)
		}
		if !strings.Contains(label, "3456") {
			t.Errorf("label %q should keep the key's tail for identification", label)
		}
		if !strings.Contains(label, string(ModeTest)) {
			t.Errorf("label %q should name the mode", label)
		}
	})
}

func TestRetryable(t *testing.T) {
	t.Run("Rate Limit Is Transient", func(t *testing.T) {
		err := &stripe.Error{HTTPStatusCode: 429}
		if !retryable(err) {
			t.Error("expected 429 to be retryable")
		}
	})

	t.Run("Server Error Is Transient", func(t *testing.T) {
		err := &stripe.Error{HTTPStatusCode: 500}
		if !retryable(err) {
			t.Error("expected 500 to be retryable")
		}
	})

	t.Run("Client Error Is Permanent", func(t *testing.T) {
		for _, code := range []int{400, 401, 402, 404} {
			if retryable(&stripe.Error{HTTPStatusCode: code}) {
				t.Errorf("expected %d to be permanent", code)
			}
		}
	})

	t.Run("Non-Stripe Error Is Permanent", func(t *testing.T) {
		if retryable(errors.New("dial tcp: connection refused")) {
			t.Error("expected plain errors to be permanent")
		}
	})

	t.Run("Unwraps Wrapped Stripe Errors", func(t *testing.T) {
		var err error = &stripe.Error{HTTPStatusCode: 503}
		wrapped := errors.Join(errors.New("subscription create"), err)
		if !retryable(wrapped) {
			t.Error("expected wrapped 503 to be retryable")
		}
	})
}
