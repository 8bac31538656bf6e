//go:build !windows

package cohort

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"
)

func registerPlatformEntries() {
	Register("selfterm", func(ctx context.Context, index int, args []string) error {
		if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
			return err
		}
		time.Sleep(10 * time.Second)
		return errors.New("termination signal never arrived")
	})
}
