package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zikani/smartboot/internal/config"
	"github.com/zikani/smartboot/pkg/deploy"
	"github.com/zikani/smartboot/pkg/device"
	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/format"
	"github.com/zikani/smartboot/pkg/history"
	"github.com/zikani/smartboot/pkg/image"
	"github.com/zikani/smartboot/pkg/media"
	"github.com/zikani/smartboot/pkg/pipeline"
	"github.com/zikani/smartboot/pkg/platform"
	"github.com/zikani/smartboot/pkg/progress"
	"github.com/zikani/smartboot/pkg/security"
)

var (
	createDevice    string
	createImage     string
	createFS        string
	createLabel     string
	createScheme    string
	createBoot      string
	createImageType string
	createQuick     bool
	createRaw       bool
	createYes       bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Format a device, deploy an image and install boot code",
	RunE:  runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVar(&createDevice, "device", "", "Target device (name or Windows disk number)")
	createCmd.Flags().StringVar(&createImage, "image", "", "ISO image path")
	createCmd.Flags().StringVar(&createFS, "filesystem", media.FSFat32, "Filesystem (FAT32, NTFS, exFAT, UDF, ext2, ext3, ext4, HFS+, APFS)")
	createCmd.Flags().StringVar(&createLabel, "label", "", "Volume label")
	createCmd.Flags().StringVar(&createScheme, "scheme", media.SchemeMBR, "Partition scheme (MBR, GPT)")
	createCmd.Flags().StringVar(&createBoot, "boot", media.BootBIOS, "Boot type (BIOS, UEFI, Dual, FreeDOS)")
	createCmd.Flags().StringVar(&createImageType, "image-type", media.ImageAuto, "Image type (auto, windows, linux, freedos, generic)")
	createCmd.Flags().BoolVar(&createQuick, "quick", true, "Quick format")
	createCmd.Flags().BoolVar(&createRaw, "raw", false, "Write the image block-for-block instead of extracting it")
	createCmd.Flags().BoolVar(&createYes, "yes", false, "Skip the confirmation prompt")
	createCmd.MarkFlagRequired("device")
	createCmd.MarkFlagRequired("image")
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}
	if err := ensureDirectories(cfg.HistoryDBPath, cfg.WorkDir); err != nil {
		return err
	}

	runner := newRunner(cfg)

	dev, err := findDevice(ctx, device.NewLister(runtime.GOOS, runner), createDevice)
	if err != nil {
		return err
	}

	formatSpec := media.FormatSpec{
		Filesystem:  createFS,
		Label:       createLabel,
		Scheme:      createScheme,
		QuickFormat: createQuick,
	}
	bootSpec := media.BootSpec{
		Type:      createBoot,
		ImageType: createImageType,
		Scheme:    createScheme,
	}
	if err := media.Validate(formatSpec, bootSpec); err != nil {
		return err
	}

	info, err := image.NewInspector(runner).Inspect(ctx, createImage, createImageType, createRaw)
	if err != nil {
		return err
	}

	if !createYes && !confirmErase(dev, info) {
		fmt.Println("Aborted.")
		return nil
	}

	repo, err := history.NewRepository(cfg.HistoryDBPath)
	if err != nil {
		return errors.Wrap(err, "history db init failed")
	}
	defer repo.Close()

	run := &history.Run{
		DeviceName:  dev.Name,
		DeviceLabel: dev.Label,
		ImagePath:   info.Path,
		ImageType:   info.Type,
		Filesystem:  formatSpec.Filesystem,
		Scheme:      formatSpec.Scheme,
		BootType:    bootSpec.Type,
		Status:      history.StatusRunning,
	}
	if err := repo.Create(run); err != nil {
		return err
	}

	validator := security.NewValidator(cfg.MaxFileSize, cfg.MaxTotalSize, cfg.MaxCompressionRatio)

	formatter := format.New(runtime.GOOS, runner)
	formatter.SetMountPolling(cfg.MountPollAttempts, cfg.MountPollInterval)

	deployer := deploy.NewDeployer(runtime.GOOS, runner, validator)
	deployer.WorkDir = cfg.WorkDir
	deployer.ChunkSize = cfg.WriteChunkSize

	orch := pipeline.New(formatter, deployer, platform.Host(runner), printProgress)

	// First interrupt requests a stop at the next stage boundary; a
	// second one kills the process the usual way.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; ok {
			fmt.Println("\nStopping at the next stage boundary...")
			orch.Cancel()
			signal.Stop(sigs)
		}
	}()

	result, runErr := orch.Run(ctx, pipeline.Request{
		Device: dev,
		Format: formatSpec,
		Boot:   bootSpec,
		Image:  info,
		Raw:    createRaw,
	})

	switch {
	case runErr == nil:
		repo.UpdateStatus(run.ID, history.StatusDone, "")
		fmt.Printf("Done: %s (%s written to %s)\n", result.Message, info.Path, dev.Name)
		return nil
	case errors.Is(runErr, errors.ErrCancelled):
		repo.UpdateStatus(run.ID, history.StatusCancelled, runErr.Error())
		return runErr
	default:
		repo.UpdateStatus(run.ID, history.StatusFailed, runErr.Error())
		return runErr
	}
}

func printProgress(e progress.Event) {
	if e.Outcome != progress.OutcomeNone {
		fmt.Printf("[%3d%%] %s (%s)\n", e.Percent, e.Message, e.Outcome)
		return
	}
	fmt.Printf("[%3d%%] %s\n", e.Percent, e.Message)
}

// confirmErase makes the operator acknowledge the destructive write.
func confirmErase(dev *media.Device, info *image.Info) bool {
	fmt.Printf("About to ERASE %s (%s, %s) and write %s [%s]\n",
		dev.Name, dev.Label, humanSize(dev.Size), info.Path, info.Type)
	fmt.Print("Type 'yes' to continue: ")
	var answer string
	fmt.Scanln(&answer)
	return answer == "yes"
}
