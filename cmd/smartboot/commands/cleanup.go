package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zikani/smartboot/internal/config"
	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/history"
)

var (
	cleanupDownloads bool
	cleanupStaging   bool
	cleanupHistory   bool
	cleanupAll       bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove downloads, stale staging directories and old history",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupDownloads, "downloads", false, "Remove downloaded images")
	cleanupCmd.Flags().BoolVar(&cleanupStaging, "staging", false, "Remove stale staging directories")
	cleanupCmd.Flags().BoolVar(&cleanupHistory, "history", false, "Prune the run journal to the retention limit")
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "All of the above")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if !cleanupDownloads && !cleanupStaging && !cleanupHistory && !cleanupAll {
		return fmt.Errorf("must specify --downloads, --staging, --history, or --all")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if cleanupAll || cleanupDownloads {
		dir := filepath.Join(cfg.WorkDir, "downloads")
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrap(err, "failed to remove downloads")
		}
		fmt.Printf("Removed %s\n", dir)
	}

	if cleanupAll || cleanupStaging {
		// Staging directories are removed when a run ends; anything
		// left over is from a crashed process.
		removed, err := removeStale(cfg.WorkDir, "smartboot-staging-")
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d stale staging directories\n", removed)
	}

	if cleanupAll || cleanupHistory {
		if err := ensureDirectories(cfg.HistoryDBPath, ""); err != nil {
			return err
		}
		repo, err := history.NewRepository(cfg.HistoryDBPath)
		if err != nil {
			return errors.Wrap(err, "history db init failed")
		}
		defer repo.Close()

		deleted, err := repo.Prune(cfg.HistoryKeep)
		if err != nil {
			return errors.Wrap(err, "prune failed")
		}
		fmt.Printf("Pruned %d history rows (kept newest %d)\n", deleted, cfg.HistoryKeep)
	}

	return nil
}

func removeStale(dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read work directory")
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			fmt.Printf("warning: failed to remove %s: %v\n", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}
