package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zikani/smartboot/internal/config"
	"github.com/zikani/smartboot/pkg/errors"
	"github.com/zikani/smartboot/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := ensureDirectories(cfg.HistoryDBPath, ""); err != nil {
		return err
	}

	repo, err := history.NewRepository(cfg.HistoryDBPath)
	if err != nil {
		return errors.Wrap(err, "history db init failed")
	}
	defer repo.Close()

	runs, err := repo.List(historyLimit)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-5s %-20s %-12s %-40s %-10s %-10s %-20s\n", "ID", "TIME", "DEVICE", "IMAGE", "BOOT", "STATUS", "ERROR")
	fmt.Println("--------------------------------------------------------------------------------------------------------------------")
	for _, r := range runs {
		errMsg := r.ErrorMessage
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Printf("%-5d %-20s %-12s %-40s %-10s %-10s %-20s\n",
			r.ID, r.CreatedAt, r.DeviceName, r.ImagePath, r.BootType, r.Status, errMsg)
	}
	return nil
}
