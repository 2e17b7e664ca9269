package vm

import (
	"path/filepath"

	"github.com/arpunk/AtomVM/config"
)

// NewGlobalContextFromConfig creates a node from a loaded atomvm.toml:
// logging verbosity is applied first, then the runtime and crashdump
// sections are threaded into Options. A relative crash-dump path resolves
// against the configuration directory.
func NewGlobalContextFromConfig(cfg *config.Config) *GlobalContext {
	cfg.ConfigureLogging()

	crashPath := cfg.CrashDump.Path
	if crashPath != "" && !filepath.IsAbs(crashPath) && cfg.Dir != "" {
		crashPath = filepath.Join(cfg.Dir, crashPath)
	}

	return NewGlobalContextWithOptions(Options{
		DefaultHeapSize: cfg.Runtime.DefaultHeapSize,
		MinHeapSize:     cfg.Runtime.MinHeapSize,
		MaxHeapSize:     cfg.Runtime.MaxHeapSize,
		Schedulers:      cfg.Runtime.Schedulers,
		CrashDumpPath:   crashPath,
	})
}
