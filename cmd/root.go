package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "staff-portal",
	Short: "Staff login portal with password and face login",
	Long: `Staff Portal signs staff in with a password or a face scan.
Accounts live in a spreadsheet (or MySQL) directory, enrollment photos in a
GitHub repository (or a local directory), and a face embedding server turns
photos and camera frames into descriptors.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
