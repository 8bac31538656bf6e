package cohort

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/Paintersrp/cohort/errreport"
)

// TestMain doubles as the worker binary: when the supervisor under test
// spawns workers it re-executes this test binary, and Init routes those
// children into the entry points registered here before any test runs.
func TestMain(m *testing.M) {
	Register("ok", func(ctx context.Context, index int, args []string) error {
		return nil
	})
	Register("boom", func(ctx context.Context, index int, args []string) error {
		return errors.New("boom")
	})
	Register("panic", func(ctx context.Context, index int, args []string) error {
		panic("kaboom")
	})
	Register("exit7", func(ctx context.Context, index int, args []string) error {
		os.Exit(7)
		return nil
	})
	Register("hang", func(ctx context.Context, index int, args []string) error {
		select {}
	})
	Register("failfirst", func(ctx context.Context, index int, args []string) error {
		if index == 0 {
			return errors.New("worker zero gave up")
		}
		time.Sleep(60 * time.Second)
		return nil
	})
	Register("writeindex", func(ctx context.Context, index int, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("writeindex wants 1 arg, got %d", len(args))
		}
		path := filepath.Join(args[0], strconv.Itoa(index))
		return os.WriteFile(path, []byte(strconv.Itoa(index)), 0o644)
	})
	Register("envprobe", func(ctx context.Context, index int, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("envprobe wants 1 arg, got %d", len(args))
		}
		path := filepath.Join(args[0], fmt.Sprintf("env-%d", index))
		return os.WriteFile(path, []byte(os.Getenv("COHORT_TEST_FLAVOR")), 0o644)
	})
	Register("say", func(ctx context.Context, index int, args []string) error {
		fmt.Printf("hello from worker %d\n", index)
		fmt.Fprintf(os.Stderr, "grumbling from worker %d\n", index)
		return nil
	})
	Register("reportonly", func(ctx context.Context, index int, args []string) error {
		store := errreport.NewStore(os.Getenv(EnvReportDir))
		if err := store.Record(os.Getpid(), "extended detail from worker"); err != nil {
			return err
		}
		os.Exit(3)
		return nil
	})
	Register("waitctx", func(ctx context.Context, index int, args []string) error {
		if len(args) == 1 {
			if err := os.WriteFile(args[0], nil, 0o644); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	})
	registerPlatformEntries()

	Init()
	os.Exit(m.Run())
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
