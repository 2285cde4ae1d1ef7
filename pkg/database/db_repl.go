package database

import (
	"fmt"
	"strconv"
	"strings"

	"hatchdb/pkg/repl"
)

// DatabaseRepl creates a REPL for the given database.
func DatabaseRepl(db *Database) *repl.REPL {
	r := repl.NewRepl()
	r.AddCommand("create", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleCreateTable(db, payload)
	}, "Create a table. usage: create table <table>")

	r.AddCommand("find", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleFind(db, payload)
	}, "Find values stored under a key. usage: find <key> from <table>")

	r.AddCommand("insert", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleInsert(db, payload)
	}, "Insert an element. usage: insert <key> <value> into <table>")

	r.AddCommand("delete", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandleDelete(db, payload)
	}, "Delete an element. usage: delete <key> <value> from <table>")

	r.AddCommand("select", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleSelect(db, payload)
	}, "Select all elements from a table. usage: select from <table>")

	r.AddCommand("depth", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleDepth(db, payload)
	}, "Print a table's global depth. usage: depth <table>")

	r.AddCommand("verify", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleVerify(db, payload)
	}, "Check a table's structural invariants. usage: verify <table>")

	r.AddCommand("pretty", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandlePretty(db, payload)
	}, "Print out the internal data representation. usage: pretty <table>")

	return r
}

// HandleCreateTable handles the create command.
func HandleCreateTable(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: create table <table>
	if len(fields) != 3 || fields[1] != "table" {
		return "", fmt.Errorf("usage: create table <table>")
	}
	tableName := fields[2]
	if _, err = db.CreateTable(tableName); err != nil {
		return "", err
	}
	return fmt.Sprintf("table %s created.\n", tableName), nil
}

// HandleFind handles the find command.
func HandleFind(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: find <key> from <table>
	if len(fields) != 4 || fields[2] != "from" {
		return "", fmt.Errorf("usage: find <key> from <table>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("find error: %v", err)
	}
	table, err := db.GetTable(fields[3])
	if err != nil {
		return "", fmt.Errorf("find error: %v", err)
	}
	values, err := table.Find(key)
	if err != nil {
		return "", fmt.Errorf("find error: %v", err)
	}
	if len(values) == 0 {
		return fmt.Sprintf("no entries with key %d.\n", key), nil
	}
	var sb strings.Builder
	for _, value := range values {
		fmt.Fprintf(&sb, "(%d, %d)\n", key, value)
	}
	return sb.String(), nil
}

// HandleInsert handles the insert command.
func HandleInsert(db *Database, payload string) (err error) {
	fields := strings.Fields(payload)
	// Usage: insert <key> <value> into <table>
	if len(fields) != 5 || fields[3] != "into" {
		return fmt.Errorf("usage: insert <key> <value> into <table>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	value, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	table, err := db.GetTable(fields[4])
	if err != nil {
		return fmt.Errorf("insert error: %v", err)
	}
	return table.Insert(key, value)
}

// HandleDelete handles the delete command.
func HandleDelete(db *Database, payload string) (err error) {
	fields := strings.Fields(payload)
	// Usage: delete <key> <value> from <table>
	if len(fields) != 5 || fields[3] != "from" {
		return fmt.Errorf("usage: delete <key> <value> from <table>")
	}
	key, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	value, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	table, err := db.GetTable(fields[4])
	if err != nil {
		return fmt.Errorf("delete error: %v", err)
	}
	return table.Remove(key, value)
}

// HandleSelect handles the select command.
func HandleSelect(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: select from <table>
	if len(fields) != 3 || fields[1] != "from" {
		return "", fmt.Errorf("usage: select from <table>")
	}
	table, err := db.GetTable(fields[2])
	if err != nil {
		return "", fmt.Errorf("select error: %v", err)
	}
	entries, err := table.Select()
	if err != nil {
		return "", fmt.Errorf("select error: %v", err)
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "(%d, %d)\n", e.Key, e.Value)
	}
	return sb.String(), nil
}

// HandleDepth handles the depth command.
func HandleDepth(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: depth <table>
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: depth <table>")
	}
	table, err := db.GetTable(fields[1])
	if err != nil {
		return "", fmt.Errorf("depth error: %v", err)
	}
	depth, err := table.GetTable().GetDepth()
	if err != nil {
		return "", fmt.Errorf("depth error: %v", err)
	}
	return fmt.Sprintf("global depth: %d\n", depth), nil
}

// HandleVerify handles the verify command.
func HandleVerify(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: verify <table>
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: verify <table>")
	}
	table, err := db.GetTable(fields[1])
	if err != nil {
		return "", fmt.Errorf("verify error: %v", err)
	}
	if err = table.VerifyIntegrity(); err != nil {
		return "", fmt.Errorf("verify error: %v", err)
	}
	return "ok\n", nil
}

// HandlePretty handles the pretty command.
func HandlePretty(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: pretty <table>
	if len(fields) != 2 {
		return "", fmt.Errorf("usage: pretty <table>")
	}
	table, err := db.GetTable(fields[1])
	if err != nil {
		return "", fmt.Errorf("pretty error: %v", err)
	}
	var sb strings.Builder
	table.Print(&sb)
	return sb.String(), nil
}
