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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/launix-de/restructure/internal/offsetset"
	"github.com/launix-de/restructure/internal/offsetstore"
	"github.com/launix-de/restructure/internal/telemetry"
)

// newInspectCmd builds the `restructure inspect` REPL: a tiny debugging
// shell over the Offset Store, grounded on scm/prompt.go's readline loop —
// the teacher's own REPL, here repurposed to list topics, print committed
// ranges, and probe Contains instead of evaluating Scheme.
func newInspectCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Interactively inspect the offset store (committed ranges per topic)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings(f, nil)
			if err != nil {
				return err
			}
			log, err := telemetry.NewLogger(s.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			store, err := buildOffsetStore(s, log)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			return runInspectRepl(store, s.Paths.OutputDirectory)
		},
	}
}

const (
	inspectPrompt = "\033[32minspect>\033[0m "
	inspectResult = "\033[31m=\033[0m "
)

func runInspectRepl(store *offsetstore.Store, outputDir string) error {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            inspectPrompt,
		HistoryFile:       ".restructure-inspect-history.tmp",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return err
	}
	defer l.Close()
	l.CaptureExitSignal()

	fmt.Println(`restructure inspect — commands: topics, ranges <topic>, contains <topic> <partition> <offset>, help, exit`)

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		runInspectCommand(store, outputDir, line)
	}
}

func runInspectCommand(store *offsetstore.Store, outputDir, line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "help":
		fmt.Println(`topics                                    list topics with persisted offsets
ranges <topic>                           print committed offset ranges per partition
contains <topic> <partition> <offset>    report whether offset is already committed
exit                                     leave the REPL`)
	case "topics":
		for _, topic := range listLocalTopics(outputDir) {
			fmt.Println(topic)
		}
	case "ranges":
		if len(fields) != 2 {
			fmt.Println("usage: ranges <topic>")
			return
		}
		printRanges(store, fields[1])
	case "contains":
		if len(fields) != 4 {
			fmt.Println("usage: contains <topic> <partition> <offset>")
			return
		}
		partition, err := strconv.Atoi(fields[2])
		if err != nil {
			fmt.Println("bad partition:", err)
			return
		}
		offset, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			fmt.Println("bad offset:", err)
			return
		}
		set := store.Load(fields[1])
		tp := offsetset.TopicPartition{Topic: fields[1], Partition: partition}
		fmt.Println(inspectResult, set.ContainsOffset(tp, offset))
	default:
		fmt.Printf("unknown command %q; try help\n", fields[0])
	}
}

func printRanges(store *offsetstore.Store, topic string) {
	set := store.Load(topic)
	for _, tp := range set.Partitions() {
		if tp.Topic != topic {
			continue
		}
		for _, r := range set.Ranges(tp) {
			fmt.Printf("partition %d: [%d, %d] last processed %s\n", tp.Partition, r.From, r.To, r.LastProcessed.Format("2006-01-02T15:04:05Z"))
		}
	}
}

// listLocalTopics best-effort scans <output>/offsets/*.csv — only
// meaningful for the file-backed offset store; a Redis-backed store has no
// directory to scan, so this returns nothing rather than erroring.
func listLocalTopics(outputDir string) []string {
	dir := filepath.Join(outputDir, "offsets")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var topics []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		topics = append(topics, strings.TrimSuffix(e.Name(), ".csv"))
	}
	return topics
}
