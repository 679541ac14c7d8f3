package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simonhull/baseplate/internal/exec"
	"github.com/simonhull/baseplate/internal/gensync"
	"github.com/simonhull/baseplate/internal/output"
	"github.com/simonhull/baseplate/internal/reconcile"
	"github.com/simonhull/baseplate/internal/schema"
	"github.com/simonhull/baseplate/internal/textdiff"
)

// printResult prints the summary of a generate run. It always prints as
// much as the run produced, then the error.
func printResult(res *gensync.Result, err error) {
	if res != nil {
		for _, d := range res.Diagnostics {
			output.Warn(fmt.Sprintf("%s: %s", d.Task, d.Message))
		}
		if res.Plan != nil {
			printPlan(res)
		}
		if res.Commands != nil {
			printCommands(res.Commands)
		}
	}
	printError(err)
}

func printPlan(res *gensync.Result) {
	plan := res.Plan
	for _, o := range plan.Outcomes {
		if o.Action == reconcile.ActionUnchanged {
			output.Verbose("unchanged " + o.Path)
			continue
		}
		output.Action(o.Action.String(), o.Path)
	}
	for _, fe := range plan.FormatErrors() {
		output.Warn(fe.Error())
	}

	if res.DryRun {
		for _, d := range res.Diffs {
			printFileDiff(d)
		}
		output.Info(fmt.Sprintf("Dry run: %d file(s) would change", len(plan.Changed())))
		return
	}

	changed := len(plan.Changed())
	switch {
	case changed == 0:
		output.Success("Everything is up to date")
	default:
		output.Success(fmt.Sprintf("Wrote %d file(s) (%d created, %d updated, %d merged, %d removed)",
			changed,
			plan.Count(reconcile.ActionCreate),
			plan.Count(reconcile.ActionUpdate),
			plan.Count(reconcile.ActionMerge),
			plan.Count(reconcile.ActionRemove)))
	}
	if n := plan.Count(reconcile.ActionOrphan); n > 0 {
		output.Warn(fmt.Sprintf("%d edited file(s) are no longer generated and were left in place", n))
	}
}

func printFileDiff(d *reconcile.FileDiff) {
	if d.Kind == reconcile.Added && !output.IsVerbose() {
		output.Step(d.Summary())
		return
	}
	output.Raw(d.Render(textdiff.RenderOptions{Color: reconcile.IsTerminal()}))
}

func printCommands(report *exec.Report) {
	for _, c := range report.Completed {
		output.Step(fmt.Sprintf("ran %s (%s)", c.Command, c.Duration.Round(time.Millisecond)))
	}
	for _, c := range report.Skipped {
		output.Verbose("skipped " + c.String() + ": no matching changes")
	}
	for _, f := range report.FailedCommands {
		output.Error(fmt.Sprintf("%s failed: %v", f.Command, f.Err))
		if stderr := strings.TrimSpace(string(f.Stderr)); stderr != "" {
			for _, line := range strings.Split(stderr, "\n") {
				output.Step(line)
			}
		}
	}
}

func printError(err error) {
	if err == nil {
		return
	}

	var ve schema.ValidationErrors
	var conflict *reconcile.ConflictDetectedError
	var failed *exec.FailedCommandsError
	switch {
	case errors.As(err, &ve):
		output.Error(fmt.Sprintf("Invalid configuration (%d problem(s))", len(ve)))
		for _, e := range ve {
			output.Step(e.Error())
		}
	case errors.As(err, &conflict):
		output.Error(fmt.Sprintf("%d file(s) have conflicts", len(conflict.Paths)))
		for _, p := range conflict.Paths {
			output.Step("resolve the conflict markers in " + p)
		}
		if errors.As(err, &failed) {
			output.Error(fmt.Sprintf("%d post-write command(s) failed", len(failed.Failures)))
		}
	case errors.As(err, &failed):
		output.Error(fmt.Sprintf("%d post-write command(s) failed", len(failed.Failures)))
	default:
		output.Error(err.Error())
	}
}
