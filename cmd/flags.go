package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// flagValue reads a flag registered in init(). A lookup error means the
// command and its RunE disagree on a flag name, so it panics.
func flagValue[T any](cmd *cobra.Command, name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("%s: flag --%s: %v", cmd.CommandPath(), name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return flagValue(cmd, name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return flagValue(cmd, name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return flagValue(cmd, name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return flagValue(cmd, name, cmd.Flags().GetFloat64)
}
