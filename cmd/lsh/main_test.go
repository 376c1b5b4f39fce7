package main

import (
	"os"
	"testing"

	"github.com/gwicho38/lsh-sub006/internal/errkind"
)

func TestExitCodeFor(t *testing.T) {
	err := errkind.New(errkind.InvalidInput, "bad flag")
	if got, want := exitCodeFor(err), errkind.CLIExitCode(errkind.InvalidInput); got != want {
		t.Fatalf("exitCodeFor(InvalidInput) = %d, want %d", got, want)
	}

	if got := exitCodeFor(os.ErrClosed); got != 1 {
		t.Fatalf("exitCodeFor(plain error) = %d, want 1", got)
	}
}

func TestSecretKey(t *testing.T) {
	os.Unsetenv("LSH_MASTER_KEY")
	os.Unsetenv("LSH_SECRETS_KEY")

	if got := secretKey(); got != "" {
		t.Fatalf("secretKey() with no env set = %q, want empty", got)
	}

	os.Setenv("LSH_SECRETS_KEY", "fallback-key")
	defer os.Unsetenv("LSH_SECRETS_KEY")
	if got := secretKey(); got != "fallback-key" {
		t.Fatalf("secretKey() = %q, want fallback-key", got)
	}

	os.Setenv("LSH_MASTER_KEY", "primary-key")
	defer os.Unsetenv("LSH_MASTER_KEY")
	if got := secretKey(); got != "primary-key" {
		t.Fatalf("secretKey() = %q, want primary-key (master takes precedence)", got)
	}
}
