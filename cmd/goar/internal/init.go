package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goar-build/goar/internal/manifest"
)

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Write a starter manifest in the current directory",
	Long: `Init writes a goar.toml with one library. The library name comes from
the argument, or from the directory name when omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

const manifestTemplate = `[defaults]
out-dir = "target/goar"
# target = "aarch64-unknown-linux-gnu"
# mode = "c-shared"
# trimpath = true

[[library]]
name = "%s"
package = "."
# ldflags = "-s -w"
# flags = "-tags netgo"

# [library.env]
# CC = "zig cc"
`

func runInit(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		name = filepath.Base(wd)
	}

	if _, err := os.Stat(manifest.DefaultFile); err == nil {
		return fmt.Errorf("%s already exists", manifest.DefaultFile)
	}
	content := fmt.Sprintf(manifestTemplate, name)
	if err := os.WriteFile(manifest.DefaultFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", manifest.DefaultFile, err)
	}
	fmt.Printf("wrote %s for library %s\n", manifest.DefaultFile, name)
	return nil
}
