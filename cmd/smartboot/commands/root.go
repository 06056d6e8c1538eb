package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "smartboot",
	Short: "SmartBoot - bootable media creation",
	Long:  `Creates bootable USB media from ISO images: formats the device, deploys the image and installs BIOS/UEFI boot code through the native platform tools.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("history-db-path", ".artifacts/history.db", "Run history database path")
	rootCmd.PersistentFlags().String("s3-bucket", "smartboot-images", "S3 image catalog bucket")
	rootCmd.PersistentFlags().String("s3-region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("work-dir", "/tmp/smartboot", "Working directory for staging and downloads")
	rootCmd.PersistentFlags().Duration("tool-timeout", 30*time.Second, "Timeout per native tool invocation")
	rootCmd.PersistentFlags().Int("write-chunk-size", 4*1024*1024, "Raw write chunk size in bytes")
	rootCmd.PersistentFlags().Int64("max-file-size", 8*1024*1024*1024, "Max staged file size in bytes")
	rootCmd.PersistentFlags().Int64("max-total-size", 32*1024*1024*1024, "Max total staged size in bytes")
	rootCmd.PersistentFlags().Float64("max-compression-ratio", 100.0, "Max image expansion ratio")

	viper.BindPFlag("history-db-path", rootCmd.PersistentFlags().Lookup("history-db-path"))
	viper.BindPFlag("s3-bucket", rootCmd.PersistentFlags().Lookup("s3-bucket"))
	viper.BindPFlag("s3-region", rootCmd.PersistentFlags().Lookup("s3-region"))
	viper.BindPFlag("work-dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag("tool-timeout", rootCmd.PersistentFlags().Lookup("tool-timeout"))
	viper.BindPFlag("write-chunk-size", rootCmd.PersistentFlags().Lookup("write-chunk-size"))
	viper.BindPFlag("max-file-size", rootCmd.PersistentFlags().Lookup("max-file-size"))
	viper.BindPFlag("max-total-size", rootCmd.PersistentFlags().Lookup("max-total-size"))
	viper.BindPFlag("max-compression-ratio", rootCmd.PersistentFlags().Lookup("max-compression-ratio"))
}
