package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/libstat/stat"
)

// VersionCmd prints the provider API version
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the provider API version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("libstat provider API %s\n", stat.APIVersion)
	},
}
