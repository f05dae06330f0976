package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/sidecar"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sidecar",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sidecar version %s\n", strings.TrimSpace(sidecar.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
