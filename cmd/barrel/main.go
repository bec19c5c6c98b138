// barrel is a small admin/smoke-test CLI over an embedded barreldb store.
// It opens (or creates) a store directory and runs a single operation
// against it, then exits — it is not a network server.
//
// Usage:
//
//	barrel [flags] <command> [args...]
//
// Commands:
//
//	put <key> <value>   write key/value
//	get <key>            print key's current value
//	delete <key>         remove key
//	keys                 list every live key
//	stat                 print key count, segment count, reclaimable bytes
//	merge                run compaction
//
// Flags:
//
//	-data string        Data directory (default "data")
//	-config string       Path to a JSON config file (default: none, use flag/env defaults)
//	-index string        Index backend: btree, skiplist, bptree (default "btree")
//	-io string           I/O backend for frozen files: standard, mmap (default "standard")
//	-sync                fsync the active file after every write
//	-loglevel string     Log level: debug, info, warn, error (default "info")
//	-version             Show version and exit
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/barreldb/barreldb/internal/barrel"
	"github.com/barreldb/barreldb/internal/config"
	"github.com/barreldb/barreldb/internal/version"
)

// envOrDefault returns the environment variable value if set, otherwise the fallback.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envBoolOrDefault returns the environment variable as bool if set, otherwise the fallback.
func envBoolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func main() {
	// Flags take precedence over environment variables.
	// Env vars: BARREL_DATA, BARREL_CONFIG, BARREL_INDEX, BARREL_IO,
	//           BARREL_SYNC, BARREL_LOG_LEVEL
	dataDir := flag.String("data", envOrDefault("BARREL_DATA", "data"), "Data directory")
	configPath := flag.String("config", envOrDefault("BARREL_CONFIG", ""), "Path to a JSON config file")
	indexType := flag.String("index", envOrDefault("BARREL_INDEX", "btree"), "Index backend: btree, skiplist, bptree")
	ioType := flag.String("io", envOrDefault("BARREL_IO", "standard"), "I/O backend for frozen files: standard, mmap")
	syncWrite := flag.Bool("sync", envBoolOrDefault("BARREL_SYNC", false), "fsync the active file after every write")
	logLevel := flag.String("loglevel", envOrDefault("BARREL_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("barrel v%s (built %s)\n", version.Version, version.BuildTime)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("usage: barrel [flags] <put|get|delete|keys|stat|merge> [args...]")
	}
	cmd, cmdArgs := args[0], args[1:]

	logger, err := config.NewLogger(*logLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	fileCfg := config.DefaultFileConfig(*dataDir)
	if *configPath != "" {
		fileCfg, err = config.Load(*configPath, *dataDir)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	fileCfg.IndexType = *indexType
	fileCfg.IOType = *ioType
	fileCfg.SyncWrite = *syncWrite

	opts, err := fileCfg.ToEngineOptions(logger)
	if err != nil {
		log.Fatalf("failed to build engine options: %v", err)
	}

	engine, err := barrel.Open(opts)
	if err != nil {
		log.Fatalf("failed to open store at %s: %v", *dataDir, err)
	}
	defer engine.Close()

	if err := run(engine, cmd, cmdArgs); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func run(e *barrel.Engine, cmd string, args []string) error {
	switch cmd {
	case "put":
		if len(args) != 2 {
			return fmt.Errorf("usage: put <key> <value>")
		}
		return e.Put([]byte(args[0]), []byte(args[1]))

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: get <key>")
		}
		value, err := e.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Println(string(value))
		return nil

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: delete <key>")
		}
		return e.Delete([]byte(args[0]))

	case "keys":
		for _, key := range e.ListKeys() {
			fmt.Println(string(key))
		}
		return nil

	case "stat":
		stat, err := e.Stat()
		if err != nil {
			return err
		}
		fmt.Printf("keys=%d data_files=%d reclaimable_bytes=%d\n", stat.KeyCount, stat.DataFileCount, stat.ReclaimableBytes)
		return nil

	case "merge":
		return e.Merge()

	default:
		return fmt.Errorf("unknown command %q (want one of: put, get, delete, keys, stat, merge)", strings.TrimSpace(cmd))
	}
}
