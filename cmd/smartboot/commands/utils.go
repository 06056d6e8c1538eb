package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zikani/smartboot/internal/config"
	"github.com/zikani/smartboot/pkg/device"
	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/platform"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(historyDBPath, workDir string) error {
	if err := os.MkdirAll(filepath.Dir(historyDBPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create work directory")
		}
	}
	return nil
}

// newRunner builds the tool runner from config.
func newRunner(cfg *config.Config) *platform.ExecRunner {
	r := platform.NewRunner()
	r.Timeout = cfg.ToolTimeout
	return r
}

// findDevice resolves the --device argument against the removable
// device list. It accepts a device name ("sdb", "disk2") or a Windows
// disk number. Devices that are not in the removable list are refused
// outright.
func findDevice(ctx context.Context, lister *device.Lister, wanted string) (*media.Device, error) {
	devices, err := lister.List(ctx)
	if err != nil {
		return nil, err
	}

	wanted = strings.TrimPrefix(wanted, "/dev/")
	for i := range devices {
		if devices[i].Name == wanted {
			return &devices[i], nil
		}
		if n, err := strconv.Atoi(wanted); err == nil && devices[i].Number == n {
			return &devices[i], nil
		}
	}
	return nil, errors.Wrapf(errors.ErrDevice, "%s is not a removable device", wanted)
}

// humanSize formats a byte count for table output.
func humanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/float64(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(1<<20))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
