package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goar-build/goar/internal/manifest"
	"github.com/goar-build/goar/internal/watch"
)

var (
	watchManifest string
	watchDebounce time.Duration
	watchJobs     int
)

var watchCmd = &cobra.Command{
	Use:   "watch [library...]",
	Short: "Rebuild manifest libraries when their sources change",
	Long: `Watch builds the named libraries (all of them without arguments), then
keeps watching their package directories and rebuilds whenever a Go
source file, go.mod or go.sum changes. Stop it with Ctrl-C.`,
	Args: cobra.ArbitraryArgs,
	RunE: runWatch,
}

func init() {
	flags := watchCmd.Flags()
	flags.StringVarP(&watchManifest, "manifest", "f", manifest.DefaultFile, "Manifest file for multi-library builds")
	flags.DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a rebuild")
	flags.IntVarP(&watchJobs, "jobs", "j", 1, "Parallel library builds per rebuild")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(watchManifest)
	if err != nil {
		return err
	}
	libs, err := selectLibraries(m, args, watchManifest)
	if err != nil {
		return err
	}
	dirs := manifest.InputDirs(filepath.Dir(watchManifest), libs)
	if len(dirs) == 0 {
		return fmt.Errorf("nothing to watch: no library names a package directory")
	}

	w, err := watch.New(dirs, watchDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := w.Run(ctx); err != nil {
			log.Errorf("watcher stopped: %v", err)
			stop()
		}
	}()

	log.Infof("watching %d directories for %d libraries", len(dirs), len(libs))
	rebuild(ctx, libs)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Ticks():
			log.Infof("sources changed, rebuilding")
			rebuild(ctx, libs)
		}
	}
}

// rebuild keeps the watch loop alive across failures: a broken build is
// reported, not fatal, because the next save may fix it.
func rebuild(ctx context.Context, libs []*manifest.Library) {
	if err := buildLibraries(ctx, libs, watchJobs); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Errorf("build failed: %v", err)
	}
}
