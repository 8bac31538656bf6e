package cohort

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestInvokeRecoversPanics(t *testing.T) {
	err := invoke(context.Background(), func(ctx context.Context, index int, args []string) error {
		panic("kaboom")
	}, 0, nil)
	if err == nil {
		t.Fatal("panic was swallowed")
	}
	if !strings.Contains(err.Error(), "panic: kaboom") {
		t.Fatalf("error %q does not carry the panic value", err)
	}
	if !strings.Contains(err.Error(), "goroutine") {
		t.Fatalf("error %q does not carry the stack", err)
	}
}

func TestInvokePassesThroughResults(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := invoke(context.Background(), func(ctx context.Context, index int, args []string) error {
		if index != 4 {
			t.Errorf("index = %d, want 4", index)
		}
		if len(args) != 1 || args[0] != "a" {
			t.Errorf("args = %v, want [a]", args)
		}
		return sentinel
	}, 4, []string{"a"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
}

func TestFailureSinkIgnoresMalformedFD(t *testing.T) {
	t.Setenv(EnvFailureFD, "junk")
	if f := failureSink(); f != nil {
		f.Close()
		t.Fatal("sink opened from malformed fd")
	}
	// Descriptors below the extra-file range are never the failure channel.
	t.Setenv(EnvFailureFD, "2")
	if f := failureSink(); f != nil {
		f.Close()
		t.Fatal("sink opened from reserved fd")
	}
}

func TestFailureSinkAbsentByDefault(t *testing.T) {
	t.Setenv(EnvFailureFD, "")
	if f := failureSink(); f != nil {
		f.Close()
		t.Fatal("sink opened without the env contract")
	}
}
