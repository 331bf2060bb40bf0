package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"governance-sync/internal/record"
)

// JSONStore keeps the state in a single pretty-printed JSON document of the
// form {"block": n, "logs": [...]}.
type JSONStore struct {
	path    string
	genesis uint64
}

func NewJSONStore(path string, genesis uint64) *JSONStore {
	return &JSONStore{path: path, genesis: genesis}
}

func (s *JSONStore) Load(ctx context.Context) (record.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return record.Genesis(s.genesis), nil
		}
		return record.State{}, failure("read", err)
	}

	var st record.State
	if err := json.Unmarshal(data, &st); err != nil {
		return record.State{}, failure("decode "+s.path, err)
	}
	if st.Logs == nil {
		st.Logs = []record.LogEntry{}
	}
	return st, nil
}

// Save writes the state to a temporary file next to the target and renames
// it into place, so readers see either the old or the new document.
func (s *JSONStore) Save(ctx context.Context, st record.State) error {
	if st.Logs == nil {
		st.Logs = []record.LogEntry{}
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return failure("encode", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failure("mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return failure("create temp", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return failure("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return failure("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return failure("close", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return failure(fmt.Sprintf("rename to %s", s.path), err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }
