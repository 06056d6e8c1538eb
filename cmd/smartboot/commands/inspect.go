package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zikani/smartboot/internal/config"
	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/image"
	"github.com/zikani/smartboot/pkg/media"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Validate an ISO image and report its detected type",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	info, err := image.NewInspector(newRunner(cfg)).Inspect(context.Background(), args[0], media.ImageAuto, false)
	if err != nil {
		return err
	}

	fmt.Printf("Image:   %s\n", info.Path)
	fmt.Printf("Size:    %s\n", humanSize(info.Size))
	fmt.Printf("Type:    %s\n", info.Type)
	if len(info.Entries) > 0 {
		fmt.Printf("Entries: %d\n", len(info.Entries))
	} else {
		fmt.Println("Entries: unavailable (no archive tool on host, classified by filename)")
	}
	return nil
}
