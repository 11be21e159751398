package engine

import (
	"errors"

	"github.com/finnctl/finnctl/pkg/dispatch"
	"github.com/finnctl/finnctl/pkg/project"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

// ProjectStatus summarizes one project directory and its dispatch history
type ProjectStatus struct {
	Name           string
	Dir            string
	HasInput       bool
	HasBuildScript bool
	OutputDir      string
	Runs           int
	LastRun        *types.RunRecord
}

// Status reports the state of a project
func (e *Engine) Status(name string) (*ProjectStatus, error) {
	name = project.CanonicalName(name)
	projects := e.Projects()
	if err := projects.Require(name); err != nil {
		return nil, err
	}

	st := &ProjectStatus{
		Name:           name,
		Dir:            projects.Dir(name),
		HasInput:       utils.FileExists(projects.InputPath(name)),
		HasBuildScript: utils.FileExists(projects.BuildScriptPath(name)),
	}

	outDir, err := dispatch.LocateOutputDir(st.Dir)
	switch {
	case err == nil:
		st.OutputDir = outDir
	case !errors.Is(err, types.ErrNoOutputDir):
		return nil, err
	}

	history, err := e.runs.History(name)
	if err != nil {
		return nil, err
	}
	st.Runs = len(history)
	if len(history) > 0 {
		last := history[len(history)-1]
		st.LastRun = &last
	}

	return st, nil
}
