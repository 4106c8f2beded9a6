package internal

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goar-build/goar/cargo"
	"github.com/goar-build/goar/target"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the supported target triples",
	Long: `Targets prints every triple goar can build for, the Go platform it
maps to, the cross compiler used when building away from the host, and
the system libraries a cargo host build must link.`,
	Args: cobra.NoArgs,
	RunE: runTargets,
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	host := target.Host()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRIPLE\tPLATFORM\tCROSS CC\tSYSTEM LIBS")
	for _, triple := range target.Triples() {
		p, err := target.Resolve(triple)
		if err != nil {
			return err
		}
		cc := p.CC
		switch {
		case p.Triple == host.Triple:
			cc = "(native)"
		case cc == "":
			cc = "(set CC manually)"
		}
		libs := strings.Join(cargo.SystemLibs(p.GOOS), ",")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Triple, p, cc, libs)
	}
	return w.Flush()
}
