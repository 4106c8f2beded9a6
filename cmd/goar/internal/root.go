package internal

import (
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

// Version is stamped by release builds via -ldflags -X.
var Version = "devel"

var rootCmd = &cobra.Command{
	Use:   "goar",
	Short: "goar builds Go packages into C archives for cargo",
	Long: `goar compiles Go packages with -buildmode=c-archive or c-shared, stages
the archive and its generated header into an output directory, and prints
the link directives a cargo build script forwards to rustc.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}
