// Package main is the command line front end for docdb.
//
// docdb is an embedded single-file JSON document store. This wrapper exposes
// one-shot CRUD subcommands over a named database file. Configuration is
// read from CLI flags, optionally merged over a YAML config file.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/maruel/docdb"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cfgPath      string
	dbName       string
	dbPath       string
	logLevel     string
	withHistory  bool
	enforceTypes bool

	rowKey     string
	whereFlags []string
	columnsCSV string
	historyN   int
)

var rootCmd = &cobra.Command{
	Use:           "docdb",
	Short:         "Embedded single-file JSON document store",
	Long:          `docdb stores tabular data in a single JSON file with per-table column schemas, creation/update timestamps, and SQL-flavored select/insert/update/delete operations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "YAML config file (optional)")
	pf.StringVar(&dbName, "db", "", "Database name")
	pf.StringVar(&dbPath, "path", "", "Snapshot file path (default: <db>.json)")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVar(&withHistory, "history", false, "Record commits in a local git repository")
	pf.BoolVar(&enforceTypes, "enforce-types", false, "Validate values against declared column datatypes")

	insertCmd.Flags().StringVar(&rowKey, "key", "", "Row key (default: auto-assigned)")
	selectCmd.Flags().StringVar(&columnsCSV, "columns", "", "Columns to project (comma-separated)")
	selectCmd.Flags().StringArrayVar(&whereFlags, "where", nil, "Filter entry FIELD=VALUE (repeatable, implicit AND)")
	updateCmd.Flags().StringVar(&rowKey, "key", "", "Row key")
	updateCmd.Flags().StringArrayVar(&whereFlags, "where", nil, "Filter entry FIELD=VALUE (repeatable, implicit AND)")
	deleteCmd.Flags().StringVar(&rowKey, "key", "", "Row key")
	deleteCmd.Flags().StringArrayVar(&whereFlags, "where", nil, "Filter entry FIELD=VALUE (repeatable, implicit AND)")
	historyCmd.Flags().IntVarP(&historyN, "count", "n", 10, "Number of entries to show")

	rootCmd.AddCommand(createTableCmd, insertCmd, selectCmd, updateCmd, deleteCmd, tablesCmd, infoCmd, historyCmd)
}

// setup merges the config file under the flags and installs the logger.
func setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("db") && cfg.Name != "" {
		dbName = cfg.Name
	}
	if !cmd.Flags().Changed("path") && cfg.Path != "" {
		dbPath = cfg.Path
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		logLevel = cfg.LogLevel
	}
	if !cmd.Flags().Changed("history") && cfg.History {
		withHistory = true
	}
	if !cmd.Flags().Changed("enforce-types") && cfg.EnforceTypes {
		enforceTypes = true
	}
	if dbName == "" {
		return errors.New("a database name is required (--db or config file)")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)
	return nil
}

func openDB() (*docdb.Database, error) {
	opts := []docdb.Option{}
	if dbPath != "" {
		opts = append(opts, docdb.WithPath(dbPath))
	}
	if withHistory {
		opts = append(opts, docdb.WithHistory())
	}
	if enforceTypes {
		opts = append(opts, docdb.WithTypeEnforcement())
	}
	return docdb.Open(dbName, opts...)
}

var createTableCmd = &cobra.Command{
	Use:   "create-table TABLE COLUMN:TYPE...",
	Short: "Create a table with the given column schema",
	Long:  `Creates a table. Each column is declared as NAME:TYPE where TYPE is TEXT, NUMERIC, DECIMAL, or "LIST OF <type>", e.g. docdb create-table users name:TEXT age:NUMERIC "tags:LIST OF TEXT".`,
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var columns []docdb.Column
		for _, arg := range args[1:] {
			name, typ, ok := strings.Cut(arg, ":")
			if !ok {
				return fmt.Errorf("invalid column %q, want NAME:TYPE", arg)
			}
			columns = append(columns, docdb.Column{Name: name, Type: docdb.Datatype(typ)})
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		return db.CreateTable(args[0], columns)
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert TABLE [FIELD=VALUE...]",
	Short: "Insert a row and commit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Insert(args[0], rowKey, data); err != nil {
			return err
		}
		return db.Commit()
	},
}

var selectCmd = &cobra.Command{
	Use:   "select TABLE",
	Short: "Print matching rows as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		where, err := parseAssignments(whereFlags)
		if err != nil {
			return err
		}
		var columns []string
		if columnsCSV != "" {
			columns = strings.Split(columnsCSV, ",")
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		rows, err := db.Select(args[0], columns, where)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update TABLE FIELD=VALUE...",
	Short: "Merge fields into matching rows and commit",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		where, err := parseAssignments(whereFlags)
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Update(args[0], rowKey, where, data); err != nil {
			return err
		}
		return db.Commit()
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete TABLE",
	Short: "Delete matching rows and commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		where, err := parseAssignments(whereFlags)
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Delete(args[0], rowKey, where); err != nil {
			return err
		}
		return db.Commit()
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		for _, name := range db.Tables() {
			cols, err := db.Columns(name)
			if err != nil {
				return err
			}
			parts := make([]string, len(cols))
			for i, c := range cols {
				parts[i] = fmt.Sprintf("%s %s", c.Name, c.Type)
			}
			fmt.Printf("%s (%s)\n", name, strings.Join(parts, ", "))
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		size, err := db.Size()
		if err != nil {
			return err
		}
		fmt.Println(db.String())
		fmt.Printf("created: %s, last updated: %s, size: %d bytes\n",
			db.CreatedOn().Format("02/01/2006 15:04:05"),
			db.LastUpdated().Format("02/01/2006 15:04:05"), size)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show prior snapshot commits (requires --history)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		entries, err := db.History(historyN)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s %s %s\n", e.Hash[:12], e.When.Format("02/01/2006 15:04:05"), strings.TrimSpace(e.Message))
		}
		return nil
	},
}

// parseAssignments turns FIELD=VALUE pairs into row data. Values are
// decoded as JSON when possible and kept as strings otherwise, so numbers
// and lists round-trip while bare words need no quoting.
func parseAssignments(args []string) (docdb.Row, error) {
	if len(args) == 0 {
		return nil, nil
	}
	data := docdb.Row{}
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid assignment %q, want FIELD=VALUE", arg)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		data[field] = v
	}
	return data, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "docdb: %v\n", err)
		os.Exit(1)
	}
}
