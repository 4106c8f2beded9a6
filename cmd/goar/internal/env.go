package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goar-build/goar/internal/buildenv"
)

var (
	envTarget string
	envVars   []string
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print the environment a build would run under",
	Long: `Env resolves the target platform the same way build does and prints
the composed go tool environment, one KEY=VALUE per line. Useful for
checking what a cross build will actually see.`,
	Args: cobra.NoArgs,
	RunE: runEnv,
}

func init() {
	envCmd.Flags().StringVar(&envTarget, "target", "", "Target triple to cross compile for")
	envCmd.Flags().StringArrayVar(&envVars, "env", nil, "KEY=VALUE override for the go tool (repeatable, later wins)")
	rootCmd.AddCommand(envCmd)
}

func runEnv(cmd *cobra.Command, args []string) error {
	overrides, err := parseEnvVars(envVars)
	if err != nil {
		return err
	}
	snap := buildenv.Take()
	p, err := buildenv.ResolveTarget(envTarget, snap)
	if err != nil {
		return err
	}
	for _, kv := range buildenv.Compose(p, snap, overrides) {
		fmt.Println(kv)
	}
	return nil
}
