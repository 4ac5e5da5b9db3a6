/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command restructure turns a stream-oriented corpus of container files
// into a topic/subject/time-partitioned hierarchy of CSV or JSON-lines
// files, per spec.md §6's CLI surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/launix-de/restructure/internal/objectstore/azure"
	_ "github.com/launix-de/restructure/internal/objectstore/ceph"
	_ "github.com/launix-de/restructure/internal/objectstore/hdfs"
	_ "github.com/launix-de/restructure/internal/objectstore/local"
	_ "github.com/launix-de/restructure/internal/objectstore/s3"
)

// flags holds every CLI flag of spec.md §6, bound once in newRootCmd and
// shared with the inspect and migrate-offsets subcommands.
type flags struct {
	nameservice      string
	outputDirectory  string
	format           string
	compression      string
	deduplicate      bool
	dedupFields      []string
	numThreads       int
	cacheSize        int
	maxFilesPerTopic int
	excludeTopics    []string
	service          bool
	intervalSeconds  int
	tmpDir           string
	lockDirectory    string
	configFile       string
	dryRun           bool
	statusAddr       string
	logLevel         string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "restructure [input-path ...]",
		Short: "Restructure a stream-oriented container-file corpus into topic/subject/time-partitioned output",
		Long: `restructure discovers per-topic container files under one or more input
paths, converts each record to a flattened row, and publishes time-binned
CSV or JSON-lines files to an output location. Runs once by default, or
continuously in service mode (-S/--service).`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), args, &f)
		},
	}

	// Persistent: shared with the inspect and migrate-offsets subcommands,
	// which need the same output directory / config file / lock directory
	// to find the offset store and locks the main run uses.
	root.PersistentFlags().StringVarP(&f.outputDirectory, "output-directory", "o", "", "output directory (required unless --config-file sets target)")
	root.PersistentFlags().StringVarP(&f.configFile, "config-file", "F", "", "YAML config file; overrides any of the above")
	root.PersistentFlags().StringVar(&f.tmpDir, "tmp-dir", "", "parent of the per-topic scratch directories that stage output files (default: OS temp dir)")
	root.PersistentFlags().StringVar(&f.lockDirectory, "lock-directory", "", "directory for local topic lock files (default: tmp-dir/locks)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.Flags().StringVarP(&f.nameservice, "nameservice", "n", "", "HDFS nameservice id (for HDFS source)")
	root.Flags().StringVarP(&f.format, "format", "f", "csv", "output row format: csv or json")
	root.Flags().StringVarP(&f.compression, "compression", "c", "none", "output compression: none, gzip, or zip")
	root.Flags().BoolVarP(&f.deduplicate, "deduplicate", "d", false, "deduplicate records by dedup fields")
	root.Flags().StringSliceVar(&f.dedupFields, "dedup-field", nil, "field name used for deduplication (repeatable)")
	root.Flags().IntVarP(&f.numThreads, "num-threads", "t", 1, "number of topics processed concurrently")
	root.Flags().IntVarP(&f.cacheSize, "cache-size", "s", 100, "max open output files per topic")
	root.Flags().IntVar(&f.maxFilesPerTopic, "max-files-per-topic", 0, "cap on container files scanned per topic per pass (0 = unbounded)")
	root.Flags().StringSliceVar(&f.excludeTopics, "exclude-topic", nil, "topic to skip (repeatable)")
	root.Flags().BoolVarP(&f.service, "service", "S", false, "run continuously at a fixed interval instead of once")
	root.Flags().IntVarP(&f.intervalSeconds, "interval", "i", 60, "service mode interval, in seconds")
	root.Flags().BoolVar(&f.dryRun, "dry-run", false, "run discovery and conversion but skip publishing output")
	root.Flags().StringVar(&f.statusAddr, "status-addr", "", "if set, serve a live status websocket on this address (e.g. :8089)")

	root.AddCommand(newInspectCmd(&f))
	root.AddCommand(newMigrateOffsetsCmd(&f))

	return root
}
