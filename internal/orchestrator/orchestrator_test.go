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

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkedin/goavro/v2"

	"github.com/launix-de/restructure/internal/lock"
	localdriver "github.com/launix-de/restructure/internal/objectstore/local"
	"github.com/launix-de/restructure/internal/offsetstore"
	"github.com/launix-de/restructure/internal/pathfactory"
)

const testSchema = `{
  "type": "record",
  "name": "Envelope",
  "fields": [
    {"name": "key", "type": {"type": "record", "name": "Key", "fields": [
      {"name": "projectId", "type": "string"},
      {"name": "userId", "type": "string"}
    ]}},
    {"name": "value", "type": {"type": "record", "name": "Value", "fields": [
      {"name": "time", "type": "double"},
      {"name": "amount", "type": "long"}
    ]}}
  ]
}`

func writeContainerFile(t *testing.T, dir, name string, n int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: f, Schema: testSchema})
	if err != nil {
		t.Fatalf("new ocf writer: %v", err)
	}
	for i := 0; i < n; i++ {
		rec := map[string]any{
			"key":   map[string]any{"projectId": "proj", "userId": "user"},
			"value": map[string]any{"time": 1493711175.0, "amount": int64(i)},
		}
		if err := w.Append([]any{rec}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestRunProcessesTopicsAndAggregatesTotals(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()

	writeContainerFile(t, filepath.Join(srcDir, "2017", "orders", "part0"), "orders+0+0+2.avro", 3)
	writeContainerFile(t, filepath.Join(srcDir, "2017", "clicks", "part0"), "clicks+0+0+1.avro", 2)

	srcDriver := localdriver.New(srcDir)
	outDriver := localdriver.New(outDir)
	lockMgr := lock.NewLocalLockManager(t.TempDir())
	store := offsetstore.New(offsetstore.NewFileStore(t.TempDir()), nil)

	o := New(Config{
		SourceDriver: srcDriver,
		SourceRoots:  []string{""},
		OutputDriver: outDriver,
		LockManager:  lockMgr,
		OffsetStore:  store,
		PathFactory:  pathfactory.New(pathfactory.Hourly),
		NumThreads:   2,
		CacheSize:    10,
		Format:       "csv",
		TempDir:      t.TempDir(),
	})

	snap, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.TopicsProcessed != 2 {
		t.Fatalf("expected 2 topics processed, got %+v", snap)
	}
	if snap.FilesProcessed != 2 {
		t.Fatalf("expected 2 files processed, got %+v", snap)
	}
	if snap.RecordsProcessed != 5 {
		t.Fatalf("expected 5 records processed, got %+v", snap)
	}

	if err := lockMgr.Close(); err != nil {
		t.Fatalf("close lock manager: %v", err)
	}
}

func TestRunSkipsExcludedTopics(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	writeContainerFile(t, filepath.Join(srcDir, "2017", "orders", "part0"), "orders+0+0+2.avro", 3)

	srcDriver := localdriver.New(srcDir)
	outDriver := localdriver.New(outDir)
	lockMgr := lock.NewLocalLockManager(t.TempDir())
	store := offsetstore.New(offsetstore.NewFileStore(t.TempDir()), nil)

	o := New(Config{
		SourceDriver: srcDriver,
		SourceRoots:  []string{""},
		OutputDriver: outDriver,
		LockManager:  lockMgr,
		OffsetStore:  store,
		PathFactory:  pathfactory.New(pathfactory.Hourly),
		NumThreads:   1,
		CacheSize:    10,
		Format:       "csv",
		TempDir:      t.TempDir(),
		ExcludeTopic: func(topic string) bool { return true },
	})

	snap, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.TopicsProcessed != 0 {
		t.Fatalf("expected 0 topics processed when all excluded, got %+v", snap)
	}
}

func TestRunSkipsAlreadyLockedTopic(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	writeContainerFile(t, filepath.Join(srcDir, "2017", "orders", "part0"), "orders+0+0+2.avro", 1)

	srcDriver := localdriver.New(srcDir)
	outDriver := localdriver.New(outDir)
	lockDir := t.TempDir()
	lockMgr := lock.NewLocalLockManager(lockDir)
	store := offsetstore.New(offsetstore.NewFileStore(t.TempDir()), nil)

	held, err := lockMgr.AcquireTopicLock(filepath.Join("2017", "orders"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if held == nil {
		t.Fatal("expected to acquire the lock in the test itself")
	}
	defer held.Release()

	o := New(Config{
		SourceDriver: srcDriver,
		SourceRoots:  []string{""},
		OutputDriver: outDriver,
		LockManager:  lockMgr,
		OffsetStore:  store,
		PathFactory:  pathfactory.New(pathfactory.Hourly),
		NumThreads:   1,
		CacheSize:    10,
		Format:       "csv",
		TempDir:      t.TempDir(),
	})

	snap, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap.TopicsSkipped != 1 {
		t.Fatalf("expected 1 topic skipped for lock contention, got %+v", snap)
	}
	if snap.TopicsProcessed != 0 {
		t.Fatalf("expected 0 topics processed, got %+v", snap)
	}
}
