package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zikani/smartboot/internal/config"
	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/imagestore"
)

var fetchList string

var fetchCmd = &cobra.Command{
	Use:   "fetch <image-key>",
	Short: "Download an ISO image from the S3 catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchList, "list", "", "List catalog keys under a prefix instead of downloading")
}

func runFetch(cmd *cobra.Command, args []string) error {
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

	client, err := imagestore.NewClient(ctx, cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return errors.Wrap(err, "S3 client failed")
	}

	if cmd.Flags().Changed("list") {
		keys, err := client.List(ctx, fetchList)
		if err != nil {
			return errors.Wrap(err, "catalog list failed")
		}
		if len(keys) == 0 {
			fmt.Println("No images found")
			return nil
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("an image key is required unless --list is given")
	}
	key := args[0]

	exists, err := client.Exists(ctx, key)
	if err != nil {
		return errors.Wrap(err, "existence check failed")
	}
	if !exists {
		return fmt.Errorf("image %s not found in bucket %s", key, cfg.S3Bucket)
	}

	result, err := client.Download(ctx, key, filepath.Join(cfg.WorkDir, "downloads"))
	if err != nil {
		return errors.Wrap(err, "download failed")
	}

	fmt.Printf("Downloaded %s (%s)\n", result.LocalPath, humanSize(result.Size))
	fmt.Printf("SHA256: %s\n", result.SHA256)
	return nil
}
