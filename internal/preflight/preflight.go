package preflight

import (
	"context"

	"vrdl/internal/config"
	"vrdl/internal/endpoint"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The endpoint check is skipped when source is nil.
func RunAll(ctx context.Context, cfg *config.Config, source endpoint.Source) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Download directory", cfg.Paths.DownloadDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckExecutable("rclone", cfg.RcloneBinary()),
		CheckExecutable("7-Zip", cfg.SevenZipBinary()),
	}

	if cfg.Paths.CatalogFile != "" {
		results = append(results, CheckCatalog(cfg.Paths.CatalogFile))
	}

	if source != nil {
		if current, ok := source.Current(); ok {
			results = append(results, CheckEndpoint(ctx, current))
		} else {
			results = append(results, Result{Name: endpointCheckName, Detail: "not configured"})
		}
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
