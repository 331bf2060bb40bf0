package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"governance-sync/internal/parser"
)

// Row is a flattened proposal keyed by column name.
type Row map[string]string

// CSVExporter writes decoded proposals as CSV. The header row lists every
// column sorted alphabetically; rows follow the same column order.
type CSVExporter struct {
	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	headers []string
}

func newCSVExporter(f *os.File) (*CSVExporter, error) {
	e := &CSVExporter{file: f, writer: csv.NewWriter(f), headers: Headers()}
	if err := e.writer.Write(e.headers); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	e.writer.Flush()
	if err := e.writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv header: %w", err)
	}
	return e, nil
}

// WriteFile replaces path with a CSV of proposals. The file is written next
// to path and renamed into place, so a failed export leaves any previous file
// intact and a later export rebuilds it in full.
func WriteFile(path string, proposals []*parser.Proposal) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create csv output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create csv file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	e, err := newCSVExporter(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	for _, p := range proposals {
		if err := e.Write(p); err != nil {
			e.Close()
			return fmt.Errorf("failed to write proposal %s: %w", p.ID, err)
		}
	}
	if err := e.Close(); err != nil {
		return fmt.Errorf("failed to close csv file for %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Write adds one proposal row.
func (e *CSVExporter) Write(p *parser.Proposal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := Flatten(p)
	row := make([]string, len(e.headers))
	for i, key := range e.headers {
		row[i] = r[key]
	}

	if err := e.writer.Write(row); err != nil {
		return err
	}
	e.writer.Flush()
	return e.writer.Error()
}

// Close flushes pending rows, syncs and closes the file.
func (e *CSVExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writer.Flush()
	if err := e.writer.Error(); err != nil {
		e.file.Close()
		return err
	}
	if err := e.file.Sync(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}

// Flatten turns a proposal into a row. List columns are joined with ';'.
func Flatten(p *parser.Proposal) Row {
	targets := make([]string, len(p.Targets))
	for i, t := range p.Targets {
		targets[i] = t.Hex()
	}
	values := make([]string, len(p.Values))
	for i, v := range p.Values {
		values[i] = v.String()
	}
	calldatas := make([]string, len(p.Calldatas))
	for i, c := range p.Calldatas {
		calldatas[i] = c.String()
	}

	return Row{
		"id":           p.ID.String(),
		"proposer":     p.Proposer.Hex(),
		"targets":      strings.Join(targets, ";"),
		"values":       strings.Join(values, ";"),
		"signatures":   strings.Join(p.Signatures, ";"),
		"calldatas":    strings.Join(calldatas, ";"),
		"start_block":  p.StartBlock.String(),
		"end_block":    p.EndBlock.String(),
		"description":  p.Description,
		"block_number": fmt.Sprint(p.BlockNumber),
		"log_index":    fmt.Sprint(p.LogIndex),
	}
}

// Headers returns the sorted column names of a flattened proposal.
func Headers() []string {
	headers := []string{
		"id", "proposer", "targets", "values", "signatures", "calldatas",
		"start_block", "end_block", "description", "block_number", "log_index",
	}
	sort.Strings(headers)
	return headers
}
