package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/finnctl/finnctl/pkg/dispatch"
	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/process"
	"github.com/finnctl/finnctl/pkg/project"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/finnctl/finnctl/pkg/utils"
)

// fallbackEditors are tried in order after the requested editor, $VISUAL and $EDITOR
var fallbackEditors = []string{"vim", "vi", "nano", "gedit", "code"}

// Edit opens the project's build.py in an editor.
// preferred may be empty or a command line such as "code --wait".
func (e *Engine) Edit(ctx context.Context, name, preferred string) error {
	name = project.CanonicalName(name)
	projects := e.Projects()
	if err := projects.Require(name); err != nil {
		return err
	}
	script := projects.BuildScriptPath(name)
	if !utils.FileExists(script) {
		return fmt.Errorf("%w: %s has no build script", types.ErrProjectNotFound, name)
	}

	argv, err := e.findEditor(preferred)
	if err != nil {
		return err
	}

	e.logger.WithProject(name).Debug("Opening build script", logger.WithField("editor", argv[0]))
	return e.deps.Runner.Run(ctx, process.Command{
		Name:   argv[0],
		Args:   append(argv[1:], script),
		Env:    e.deps.BaseEnv,
		Dir:    e.workdir,
		Stdin:  e.deps.Stdin,
		Stdout: e.deps.Stdout,
		Stderr: e.deps.Stderr,
	})
}

func (e *Engine) findEditor(preferred string) ([]string, error) {
	var candidates []string
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	for _, name := range []string{"VISUAL", "EDITOR"} {
		if v, ok := dispatch.LookupEnv(e.deps.BaseEnv, name); ok && v != "" {
			candidates = append(candidates, v)
		}
	}
	candidates = append(candidates, fallbackEditors...)

	for i, candidate := range candidates {
		argv := strings.Fields(candidate)
		if len(argv) == 0 {
			continue
		}
		path, err := e.deps.LookPath(argv[0])
		if err != nil {
			if i == 0 && preferred != "" {
				e.logger.Warn(fmt.Sprintf("%s is not available, choosing another editor", argv[0]))
			}
			continue
		}
		argv[0] = path
		return argv, nil
	}

	return nil, fmt.Errorf("%w: tried %s", types.ErrNoEditor, strings.Join(fallbackEditors, ", "))
}
