package session

import (
	"strings"
	"sync"
)

const (
	DefaultDataset = "prod"
	DefaultTable   = "spans"
)

// ConfigSource provides the ambient dataset/table values. They are read at
// the moment an action runs and are never validated.
type ConfigSource interface {
	Dataset() string
	Table() string
}

// Config is a snapshot of the ambient selection.
type Config struct {
	Dataset string
	Table   string
}

// Read snapshots src.
func Read(src ConfigSource) Config {
	if src == nil {
		return Config{}
	}
	return Config{Dataset: src.Dataset(), Table: src.Table()}
}

// DatasetOrDefault returns the dataset, "prod" when blank.
func (c Config) DatasetOrDefault() string {
	if strings.TrimSpace(c.Dataset) == "" {
		return DefaultDataset
	}
	return c.Dataset
}

// TableOrDefault returns the table, "spans" when blank.
func (c Config) TableOrDefault() string {
	if strings.TrimSpace(c.Table) == "" {
		return DefaultTable
	}
	return c.Table
}

// SelectedTable returns the table or "" when none is selected.
func (c Config) SelectedTable() string {
	if strings.TrimSpace(c.Table) == "" {
		return ""
	}
	return c.Table
}

// Selection is a ConfigSource that can be updated while actions read it.
type Selection struct {
	mu      sync.RWMutex
	dataset string
	table   string
}

var _ ConfigSource = &Selection{}

func NewSelection(dataset, table string) *Selection {
	return &Selection{dataset: dataset, table: table}
}

func (s *Selection) Dataset() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dataset
}

func (s *Selection) Table() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

func (s *Selection) SetDataset(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = v
}

func (s *Selection) SetTable(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = v
}
