package commands

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/zikani/smartboot/internal/config"
	"github.com/zikani/smartboot/pkg/device"
	"github.com/zikani/smartboot/pkg/errors"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List removable devices",
	RunE:  runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	lister := device.NewLister(runtime.GOOS, newRunner(cfg))
	devices, err := lister.List(context.Background())
	if err != nil {
		return errors.Wrap(err, "device enumeration failed")
	}

	if len(devices) == 0 {
		fmt.Println("No removable devices found")
		return nil
	}

	fmt.Printf("%-20s %-30s %-12s %-10s %-20s\n", "DEVICE", "LABEL", "SIZE", "FS", "MOUNT")
	fmt.Println("----------------------------------------------------------------------------------------------")
	for _, d := range devices {
		mount := d.MountHandle
		if mount == "" {
			mount = "-"
		}
		fs := d.Filesystem
		if fs == "" {
			fs = "-"
		}
		name := d.Name
		if d.Number >= 0 {
			name = fmt.Sprintf("%s (#%d)", d.Name, d.Number)
		}
		fmt.Printf("%-20s %-30s %-12s %-10s %-20s\n", name, d.Label, humanSize(d.Size), fs, mount)
		if d.Error != "" {
			fmt.Printf("  warning: %s\n", d.Error)
		}
	}
	return nil
}
