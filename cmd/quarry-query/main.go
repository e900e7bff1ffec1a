// Package main implements the quarry-query diagnostic binary.
// It plans and executes one read against a remote table, printing the
// access path or the result rows as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
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
	Table      string
	Columns    string
	Where      whereFlags
	Explain    bool
	Limit      int
	Stats      bool
}

// whereFlags accumulates repeated -where expressions.
type whereFlags []string

func (w *whereFlags) String() string { return strings.Join(*w, "; ") }

func (w *whereFlags) Set(v string) error {
	*w = append(*w, v)
	return nil
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

	table, err := engine.Open(ctx, cfg.Table)
	if err != nil {
		log.Fatalf("Failed to open table %s: %v", cfg.Table, err)
	}

	preds, err := parsePredicates(cfg.Where)
	if err != nil {
		log.Fatalf("Failed to parse filters: %v", err)
	}

	if cfg.Explain {
		lines, err := table.Explain(preds)
		if err != nil {
			log.Fatalf("Failed to plan: %v", err)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return
	}

	var columns []string
	if cfg.Columns != "" {
		columns = splitList(cfg.Columns)
	}
	rows, err := table.Read(ctx, preds, columns)
	if err != nil {
		log.Fatalf("Failed to execute: %v", err)
	}
	defer rows.Close()

	enc := json.NewEncoder(os.Stdout)
	count := 0
	for cfg.Limit <= 0 || count < cfg.Limit {
		row, err := rows.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed reading rows: %v", err)
		}
		if err := enc.Encode(row); err != nil {
			log.Fatalf("Failed to encode row: %v", err)
		}
		count++
	}

	if cfg.Stats {
		log.Printf("table %s: access paths %v", cfg.Table, engine.PathCounts(cfg.Table))
		for _, a := range engine.TopLeftoverAttributes(5) {
			log.Printf("leftover attribute %s: %d predicates %v", a.Attribute, a.Frequency, a.Operators)
		}
	}
}

func parseFlags() Config {
	cfg := Config{}

	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to engine config file (YAML or JSON)")
	flag.StringVar(&cfg.Table, "table", "", "Host table name to read")
	flag.StringVar(&cfg.Columns, "columns", "", "Comma-separated columns to return (default all)")
	flag.Var(&cfg.Where, "where", "Filter expression, repeatable: attr=v, attr>v, attr in a,b, attr between lo hi, attr prefix p, attr like p%")
	flag.BoolVar(&cfg.Explain, "explain", false, "Print the access path instead of executing")
	flag.IntVar(&cfg.Limit, "limit", 0, "Stop after N rows (0 for all)")
	flag.BoolVar(&cfg.Stats, "stats", false, "Print leftover-predicate statistics after the read")

	flag.Parse()

	if cfg.Table == "" {
		fmt.Fprintln(os.Stderr, "quarry-query: -table is required")
		flag.Usage()
		os.Exit(2)
	}

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

func parsePredicates(exprs []string) ([]types.Predicate, error) {
	preds := make([]types.Predicate, 0, len(exprs))
	for _, expr := range exprs {
		p, err := parsePredicate(expr)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// comparisons in longest-symbol-first order so >= wins over >.
var comparisons = []struct {
	symbol string
	build  func(string, types.Value) types.Predicate
}{
	{">=", types.Ge},
	{"<=", types.Le},
	{">", types.Gt},
	{"<", types.Lt},
	{"=", types.Eq},
}

// parsePredicate reads one filter expression. Word operators take a
// whitespace-separated form; comparisons bind at the first symbol.
func parsePredicate(expr string) (types.Predicate, error) {
	fields := strings.Fields(expr)
	if len(fields) >= 3 {
		attr := fields[0]
		rest := strings.Join(fields[2:], " ")
		switch strings.ToLower(fields[1]) {
		case "in":
			parts := strings.Split(rest, ",")
			vals := make([]types.Value, len(parts))
			for i, p := range parts {
				vals[i] = parseValue(strings.TrimSpace(p))
			}
			return types.In(attr, vals...), nil
		case "between":
			if len(fields) != 4 {
				return types.Predicate{}, fmt.Errorf("between needs exactly two operands: %q", expr)
			}
			return types.Between(attr, parseValue(fields[2]), parseValue(fields[3])), nil
		case "prefix":
			return types.Prefix(attr, unquote(rest)), nil
		case "like":
			prefix, ok := types.PrefixFromLike(unquote(rest))
			if !ok {
				return types.Predicate{}, fmt.Errorf("pattern %q has no usable prefix", rest)
			}
			return types.Prefix(attr, prefix), nil
		}
	}
	for _, c := range comparisons {
		if i := strings.Index(expr, c.symbol); i > 0 {
			attr := strings.TrimSpace(expr[:i])
			return c.build(attr, parseValue(strings.TrimSpace(expr[i+len(c.symbol):]))), nil
		}
	}
	return types.Predicate{}, fmt.Errorf("cannot parse filter %q", expr)
}

// parseValue reads a literal: quoted text stays text, bare numbers
// become numbers, everything else is text.
func parseValue(s string) types.Value {
	if u := unquote(s); u != s {
		return types.String(u)
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return types.Number(s)
	}
	return types.String(s)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
