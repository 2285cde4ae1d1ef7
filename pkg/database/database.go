// Package database is a catalog of named hash indexes backed by one
// directory of database files.
package database

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"hatchdb/pkg/hash"
)

// Database is a set of named hash indexes living in one data folder.
type Database struct {
	basepath string
	tables   map[string]*hash.HashIndex
}

// Open opens a database given a data folder, creating the folder if needed.
func Open(folder string) (*Database, error) {
	// Ensure folder is of the form */
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	err := os.MkdirAll(folder, 0775)
	if err != nil {
		return nil, err
	}
	return &Database{
		basepath: folder,
		tables:   make(map[string]*hash.HashIndex),
	}, nil
}

// Close closes each table in the database, reporting the first error.
func (db *Database) Close() (err error) {
	for _, table := range db.tables {
		curErr := table.Close()
		if err == nil {
			err = curErr
		}
	}
	return err
}

// CreateTable creates a new hash index with the given name.
func (db *Database) CreateTable(name string) (*hash.HashIndex, error) {
	// Ensure the table name is alphanumeric.
	alphanumeric, _ := regexp.Compile(`\W`)
	if alphanumeric.MatchString(name) {
		return nil, errors.New("table name must be alphanumeric")
	}
	path := filepath.Join(db.basepath, name)
	if _, err := os.Stat(path); err == nil {
		return nil, errors.New("table already exists")
	}
	index, err := hash.OpenTable(path)
	if err != nil {
		return nil, err
	}
	db.tables[name] = index
	return index, nil
}

// GetTable returns a table by its name, opening it from disk if it isn't
// open yet.
func (db *Database) GetTable(name string) (*hash.HashIndex, error) {
	if index, ok := db.tables[name]; ok {
		return index, nil
	}
	path := filepath.Join(db.basepath, name)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New("table not found")
	}
	index, err := hash.OpenTable(path)
	if err != nil {
		return nil, err
	}
	db.tables[name] = index
	return index, nil
}
