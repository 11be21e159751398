package state

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

// MaxRunRecords bounds the history kept per project
const MaxRunRecords = 50

// RunStore keeps a YAML history of dispatches per project.
// Records are informational; nothing reads them to make decisions.
type RunStore struct {
	dir string
}

// NewRunStore creates a run store under workdir
func NewRunStore(workdir string) *RunStore {
	return &RunStore{dir: filepath.Join(workdir, types.DataDir, "runs")}
}

// Append adds a record to the project's history, dropping the oldest beyond MaxRunRecords
func (rs *RunStore) Append(record types.RunRecord) error {
	records, err := rs.History(record.Project)
	if err != nil {
		return err
	}

	records = append(records, record)
	if len(records) > MaxRunRecords {
		records = records[len(records)-MaxRunRecords:]
	}

	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal run records: %w", err)
	}
	if err := utils.WriteFileAtomic(rs.path(record.Project), data, 0644); err != nil {
		return fmt.Errorf("failed to write run records: %w", err)
	}
	return nil
}

// History returns the recorded runs of a project, oldest first
func (rs *RunStore) History(project string) ([]types.RunRecord, error) {
	data, err := os.ReadFile(rs.path(project))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run records: %w", err)
	}

	var records []types.RunRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse run records: %w", err)
	}
	return records, nil
}

// Last returns the most recent run of a project
func (rs *RunStore) Last(project string) (*types.RunRecord, error) {
	records, err := rs.History(project)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[len(records)-1], nil
}

func (rs *RunStore) path(project string) string {
	return filepath.Join(rs.dir, project+".yaml")
}
