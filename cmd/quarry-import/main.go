// Package main implements the quarry-import binary.
// It enumerates remote tables and emits one foreign table definition
// per table, as readable text or as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/quarrydb/quarry/internal/config"
	"github.com/quarrydb/quarry/internal/observability"
	"github.com/quarrydb/quarry/internal/remote"
	"github.com/quarrydb/quarry/pkg/fdw"
	"github.com/quarrydb/quarry/pkg/types"
)

// Config holds the tool configuration.
type Config struct {
	ConfigPath string
	Limit      string
	Except     string
	Format     string
}

func main() {
	cfg := parseFlags()

	engineCfg, err := loadEngineConfig(cfg.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	store, err := remote.NewDynamoStore(ctx, remote.Options{
		Region:   engineCfg.Remote.Region,
		Endpoint: engineCfg.Remote.Endpoint,
		Profile:  engineCfg.Remote.Profile,
		PageSize: engineCfg.Scan.PageSize,
	})
	if err != nil {
		log.Fatalf("Failed to connect to DynamoDB: %v", err)
	}

	engine, err := fdw.New(engineCfg, store, observability.LogNotifier{})
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer engine.Close()

	defs, err := engine.ImportSchema(ctx, fdw.ImportOptions{
		Limit:  splitList(cfg.Limit),
		Except: splitList(cfg.Except),
	})
	if err != nil {
		log.Fatalf("Failed to import schema: %v", err)
	}

	switch cfg.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		for _, def := range defs {
			if err := enc.Encode(def); err != nil {
				log.Fatalf("Failed to encode definition: %v", err)
			}
		}
	case "text":
		for _, def := range defs {
			printDefinition(def)
		}
	default:
		log.Fatalf("Unknown format %q (want text or json)", cfg.Format)
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to engine config file (YAML or JSON)")
	flag.StringVar(&cfg.Limit, "limit", "", "Comma-separated remote tables to include (default all)")
	flag.StringVar(&cfg.Except, "except", "", "Comma-separated remote tables to exclude")
	flag.StringVar(&cfg.Format, "format", "text", "Output format: text or json")

	flag.Parse()

	return cfg
}

func loadEngineConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		config.LoadFromEnv(cfg)
		return cfg, nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func printDefinition(def types.TableDefinition) {
	fmt.Printf("table %s (remote %s)\n", def.Name, def.Schema.TableName)
	for _, col := range def.Columns {
		line := fmt.Sprintf("  %s %s", col.Name, col.HostType)
		switch col.Role {
		case types.RoleRowID:
			line += "  row identifier"
		case types.RolePartitionKey:
			line += fmt.Sprintf("  partition key (%s)", col.Attribute)
		case types.RoleSortKey:
			line += fmt.Sprintf("  sort key (%s)", col.Attribute)
		case types.RoleIndexKey:
			line += fmt.Sprintf("  index key (%s)", strings.Join(col.Indexes, ", "))
		case types.RoleDocument:
			line += "  full document"
		}
		fmt.Println(line)
	}
	fmt.Println()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
