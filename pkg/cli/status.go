package cli

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/finnctl/finnctl/internal/engine"
)

func (c *CLI) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [project]",
		Short: "Show the status of projects",
		Long:  `Display whether each project is complete, where its build output is and how its last dispatch ended.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if len(names) == 0 {
				var err error
				if names, err = c.engine.ListProjects(); err != nil {
					return err
				}
			}
			return c.runStatus(names)
		},
	}
}

func (c *CLI) runStatus(names []string) error {
	if len(names) == 0 {
		c.printInfo("No projects found")
		return nil
	}

	statuses := make([]*engine.ProjectStatus, 0, len(names))
	for _, name := range names {
		st, err := c.engine.Status(name)
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tREADY\tOUTPUT\tLAST RUN\tRESULT\tRUNS")
	fmt.Fprintln(w, "-------\t-----\t------\t--------\t------\t----")

	for _, st := range statuses {
		ready := color.GreenString("yes")
		if !st.HasInput || !st.HasBuildScript {
			ready = color.YellowString("incomplete")
		}

		output := "-"
		if st.OutputDir != "" {
			output = filepath.Base(st.OutputDir)
		}

		lastRun, result := "-", color.WhiteString("never")
		if st.LastRun != nil {
			lastRun = fmt.Sprintf("%s %s", st.LastRun.Kind, st.LastRun.StartedAt.Format("2006-01-02 15:04"))
			if st.LastRun.ResumeStep != "" {
				lastRun += " from " + st.LastRun.ResumeStep
			}
			if st.LastRun.ExitCode == 0 && st.LastRun.Error == "" {
				result = color.GreenString("succeeded")
			} else {
				result = color.RedString(fmt.Sprintf("failed (%d)", st.LastRun.ExitCode))
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", st.Name, ready, output, lastRun, result, st.Runs)
	}

	return w.Flush()
}
