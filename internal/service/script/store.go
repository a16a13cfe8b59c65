package script

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	model "github.com/zhouzirui/z-inbox/backend/internal/model/script"
)

var (
	ErrScriptEmpty       = errors.New("script contains no dialogue rows")
	ErrUnsupportedFormat = errors.New("unsupported script format")
)

// LoadError reports a script source that cannot be used at all.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load script %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// RowParseError describes a single malformed row or cell. It is logged and
// recovered from locally; it never aborts a load.
type RowParseError struct {
	Line   int
	Column string
	Value  string
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("line %d: column %s: cannot parse %q", e.Line, e.Column, e.Value)
}

// Store indexes dialogue rows by node id. It is read-only once built.
type Store struct {
	nodes map[int]model.Node
	order []int
	rows  int
}

// New groups rows into nodes, preserving their order.
func New(rows []model.Row) *Store {
	s := &Store{nodes: make(map[int]model.Node)}
	for _, row := range rows {
		if _, ok := s.nodes[row.NodeID]; !ok {
			s.order = append(s.order, row.NodeID)
		}
		s.nodes[row.NodeID] = append(s.nodes[row.NodeID], row)
		s.rows++
	}
	return s
}

// Load reads a script from disk. The format follows the file extension:
// .csv files are parsed as comma separated text, .xlsx files as workbooks
// (sheet selects a worksheet by name, empty means the first one).
func Load(path, sheet string) (*Store, error) {
	var (
		records [][]string
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSVFile(path)
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(path, sheet)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}

	store, err := FromRecords(records)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}

	log.Printf("[script] loaded %s: %d rows in %d nodes", path, store.rows, len(store.nodes))
	return store, nil
}

// FromRecords builds a store from raw table records. The first record is
// the header row.
func FromRecords(records [][]string) (*Store, error) {
	if len(records) < 2 {
		return nil, ErrScriptEmpty
	}

	layout := detectLayout(records[0])
	rows := make([]model.Row, 0, len(records)-1)
	for i, record := range records[1:] {
		row, ok := layout.parse(i+2, record)
		if !ok {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, ErrScriptEmpty
	}
	return New(rows), nil
}

// Node returns the rows of a node in table order, or nil when absent.
func (s *Store) Node(id int) model.Node {
	rows, ok := s.nodes[id]
	if !ok {
		return nil
	}
	return append(model.Node(nil), rows...)
}

// HasNode reports whether id is present.
func (s *Store) HasNode(id int) bool {
	_, ok := s.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	return len(s.nodes)
}

// TotalTimeHint returns the first positive session budget found in table
// order, or zero.
func (s *Store) TotalTimeHint() float64 {
	for _, id := range s.order {
		for _, row := range s.nodes[id] {
			if row.TotalTimeHint > 0 {
				return row.TotalTimeHint
			}
		}
	}
	return 0
}
