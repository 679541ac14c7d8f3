// Package exec runs external commands.
//
// Executor wraps os/exec with context cancellation, per-command timeouts,
// output capture and an optional progress spinner. Runner builds on it to
// execute post-write commands once generated files are on disk:
//
//	runner := exec.NewRunner(exec.NewExecutor(nil), exec.RunnerOptions{Root: dir})
//	report := runner.Run(ctx, []exec.Command{
//	    {Args: []string{"go", "mod", "tidy"}, Priority: exec.PriorityDependencies},
//	    {Args: []string{"go", "generate", "./..."}, Priority: exec.PriorityCodegen},
//	}, changedPaths)
//	if err := report.Err(); err != nil {
//	    // every failure is listed, later commands still ran
//	}
//
// Commands run one at a time, dependency installation before code
// generation before everything else, in the order they were given within a
// bucket.
package exec
