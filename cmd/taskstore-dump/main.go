// Command taskstore-dump prints the persisted content of a task store
// directory. The store is opened as the engine opens it, so the databases are
// created if they are missing, but no snapshot is ever written. The directory
// itself must already exist.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/forestrie/go-taskstore/tasks"
	"github.com/forestrie/go-taskstore/taskstore"
)

func main() {
	var (
		path     = flag.String("path", "", "Path to the task store directory (required)")
		task     = flag.Uint("task", 0, "Only print this task id")
		logLevel = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
		mapSize  = flag.Int64("map-size", taskstore.DefaultMapSize, "LMDB map size, must be at least the size of the store")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Usage: taskstore-dump -path <dir> [-task <id>]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger.New(*logLevel)
	defer logger.OnExit()
	log := logger.Sugar.WithServiceName("taskstore-dump")

	if err := run(log, *path, tasks.TaskID(*task), *mapSize); err != nil {
		log.Errorf("taskstore-dump: %v", err)
		logger.OnExit()
		os.Exit(1)
	}
}

func run(log logger.Logger, path string, id tasks.TaskID, mapSize int64) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	s, err := taskstore.Open(log, path, taskstore.WithMapSize(mapSize))
	if err != nil {
		return err
	}
	defer s.Close()

	if id != tasks.InvalidTaskID {
		return printTask(s, id)
	}

	stats, err := s.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("next free task id: %d\n", s.NextFreeTaskID())
	fmt.Printf("uncompleted operations: %d\n", len(s.UncompletedOperations()))
	fmt.Printf("entries: meta=%d data=%d forward_task_cache=%d reverse_task_cache=%d\n\n",
		stats.Meta, stats.Data, stats.ForwardTaskCache, stats.ReverseTaskCache)

	return s.DumpData(os.Stdout)
}

func printTask(s *taskstore.Store, id tasks.TaskID) error {
	if taskType, ok := s.ReverseLookup(id); ok {
		fmt.Printf("%s: %v\n", id, taskType)
	} else {
		fmt.Printf("%s: no task type\n", id)
	}
	return taskstore.WriteTaskData(os.Stdout, id, s.LookupData(id))
}
