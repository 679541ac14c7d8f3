// Package reconcile writes a freshly generated file set into a working
// directory that may carry user edits.
//
// Each generated file is compared with the previous generation (the
// snapshot) and the working copy. Untouched files are simply updated; files
// the user edited are three-way merged so both sides' changes survive, with
// conflict markers where they collide. The outcome is applied through a
// Transaction and recorded in a new snapshot for the next run.
package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simonhull/baseplate/internal/textdiff"
)

// File is one generated output.
type File struct {
	// Path is slash-separated and relative to the project root.
	Path                 string
	Contents             []byte
	SkipFormatting       bool
	ShouldNeverOverwrite bool
}

// Action is what the reconciler decided for a path.
type Action int

const (
	// ActionUnchanged leaves the file as it is on disk.
	ActionUnchanged Action = iota
	// ActionCreate writes a file that does not exist yet.
	ActionCreate
	// ActionUpdate overwrites a file with the generated contents.
	ActionUpdate
	// ActionMerge writes generated changes merged with user edits.
	ActionMerge
	// ActionConflict writes a merge that carries conflict markers.
	ActionConflict
	// ActionKeep leaves an existing never-overwrite file or a file whose
	// conflict was resolved in favour of the working copy.
	ActionKeep
	// ActionUserDeleted skips a generated file the user deleted.
	ActionUserDeleted
	// ActionRemove deletes an unmodified file that is no longer generated.
	ActionRemove
	// ActionOrphan keeps a modified file that is no longer generated.
	ActionOrphan
)

var actionNames = map[Action]string{
	ActionUnchanged:   "unchanged",
	ActionCreate:      "create",
	ActionUpdate:      "update",
	ActionMerge:       "merge",
	ActionConflict:    "conflict",
	ActionKeep:        "keep",
	ActionUserDeleted: "deleted by user",
	ActionRemove:      "remove",
	ActionOrphan:      "orphaned",
}

func (a Action) String() string {
	return actionNames[a]
}

// Writes reports whether the action changes the file on disk.
func (a Action) Writes() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionMerge, ActionConflict:
		return true
	}
	return false
}

// Outcome is the decision for one path.
type Outcome struct {
	Path   string
	Action Action
	// Generated is the generated contents after formatting.
	Generated []byte
	// Existing is the working copy, nil when absent.
	Existing []byte
	// Result is what gets written for actions that write.
	Result    []byte
	Binary    bool
	Conflicts int
	FormatErr *FormatterError

	mode    os.FileMode
	modTime time.Time
}

// Final returns the contents the path holds after the plan is applied,
// nil when it will not exist.
func (o *Outcome) Final() []byte {
	switch {
	case o.Action.Writes():
		return o.Result
	case o.Action == ActionRemove || o.Action == ActionUserDeleted:
		return nil
	default:
		return o.Existing
	}
}

// Options configures Reconcile.
type Options struct {
	// Root is the working directory.
	Root     string
	Snapshot *Snapshot
	// Formatters run on generated text before merging.
	Formatters *Pipeline
	// Strategy resolves conflicts. Nil keeps conflict markers.
	Strategy Strategy
	// Workers bounds parallel per-file work. Zero means 8.
	Workers int
	Logger  *slog.Logger
}

// Plan is the result of reconciling a file set.
type Plan struct {
	Outcomes []*Outcome
	Snapshot *SnapshotBuilder
}

// Reconcile decides, per path, what to write. It reads the working copy
// only for generated and previously tracked paths and writes nothing.
func Reconcile(ctx context.Context, files []File, opts Options) (*Plan, error) {
	if opts.Snapshot == nil {
		opts.Snapshot = EmptySnapshot()
	}
	if opts.Strategy == nil {
		opts.Strategy = MergeStrategy{}
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	generated := make(map[string]bool, len(files))
	for _, f := range files {
		generated[f.Path] = true
	}
	var orphans []string
	for _, p := range opts.Snapshot.Paths() {
		if !generated[p] {
			orphans = append(orphans, p)
		}
	}

	outcomes := make([]*Outcome, len(files)+len(orphans))
	fileErrs := make([]error, len(outcomes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i], fileErrs[i] = decide(gctx, f, opts)
			return nil
		})
	}
	for j, p := range orphans {
		i := len(files) + j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i], fileErrs[i] = decideOrphan(p, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failed []*FileError
	for i, err := range fileErrs {
		if err == nil {
			continue
		}
		p := orphanOrFilePath(i, files, orphans)
		failed = append(failed, &FileError{Path: p, Err: err})
	}
	if len(failed) > 0 {
		return nil, &PrepareFilesError{Errors: failed}
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Path < outcomes[j].Path })

	// Conflicts are resolved one at a time, in path order.
	for _, o := range outcomes {
		if o.Action != ActionConflict {
			continue
		}
		if err := resolve(o, opts.Strategy); err != nil {
			return nil, err
		}
		logger.Debug("conflict resolved", "path", o.Path, "action", o.Action.String())
	}

	snap := NewSnapshotBuilder()
	for _, o := range outcomes {
		switch o.Action {
		case ActionRemove, ActionOrphan:
			continue
		case ActionUserDeleted:
			snap.Delete(o.Path)
			continue
		}
		if err := snap.Track(o.Path, o.Generated, o.Final()); err != nil {
			return nil, err
		}
	}

	return &Plan{Outcomes: outcomes, Snapshot: snap}, nil
}

func orphanOrFilePath(i int, files []File, orphans []string) string {
	if i < len(files) {
		return files[i].Path
	}
	return orphans[i-len(files)]
}

func decide(ctx context.Context, f File, opts Options) (*Outcome, error) {
	o := &Outcome{Path: f.Path, Binary: textdiff.IsBinary(f.Contents)}

	gen := f.Contents
	if !o.Binary && !f.SkipFormatting && opts.Formatters.Len() > 0 {
		formatted, err := opts.Formatters.Format(ctx, f.Path, gen)
		var fe *FormatterError
		if errors.As(err, &fe) {
			o.FormatErr = fe
		} else if err != nil {
			return nil, err
		}
		gen = formatted
	}
	o.Generated = gen

	if err := o.readWorking(opts.Root); err != nil {
		return nil, err
	}

	snap := opts.Snapshot
	switch {
	case snap.IsDeleted(f.Path):
		o.Action = ActionUserDeleted
		return o, nil

	case f.ShouldNeverOverwrite:
		if o.Existing != nil {
			o.Action = ActionKeep
			return o, nil
		}
		return o.write(ActionCreate, gen), nil

	case o.Binary || !snap.Tracked(f.Path):
		return o.overwrite(gen), nil

	case o.Existing == nil:
		// Tracked but gone from disk: the user deleted it.
		o.Action = ActionUserDeleted
		return o, nil
	}

	if textdiff.IsBinary(o.Existing) {
		return o.overwrite(gen), nil
	}

	working := string(o.Existing)
	var merged MergeResult
	base, ok := snap.Base(f.Path, o.Existing)
	if ok {
		merged = MergeThreeWay(base, working, string(gen))
	} else {
		merged = MergeTwoWay(working, string(gen))
	}
	// Markers left over from an earlier run stay a conflict until the user
	// resolves them.
	if !merged.HasConflict() && HasConflictMarkers(working) {
		merged.Conflicts = CountConflictMarkers(merged.Text)
	}

	switch {
	case merged.HasConflict():
		o.write(ActionConflict, []byte(merged.Text))
		o.Conflicts = merged.Conflicts
	case merged.Text == working:
		o.Action = ActionUnchanged
	case ok && base != working:
		o.write(ActionMerge, []byte(merged.Text))
	default:
		o.write(ActionUpdate, []byte(merged.Text))
	}
	return o, nil
}

func (o *Outcome) readWorking(root string) error {
	full := filepath.Join(root, filepath.FromSlash(o.Path))
	info, err := os.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", o.Path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	o.Existing = data
	o.mode = info.Mode().Perm()
	o.modTime = info.ModTime()
	return nil
}

// overwrite writes gen verbatim unless the file already holds it.
func (o *Outcome) overwrite(gen []byte) *Outcome {
	switch {
	case o.Existing == nil:
		return o.write(ActionCreate, gen)
	case bytes.Equal(o.Existing, gen):
		o.Action = ActionUnchanged
		return o
	default:
		return o.write(ActionUpdate, gen)
	}
}

// rewrites reports whether applying the outcome changes the bytes on disk.
// A conflict left unresolved from an earlier run is reported but not
// rewritten.
func (o *Outcome) rewrites() bool {
	return o.Action.Writes() && (o.Existing == nil || !bytes.Equal(o.Existing, o.Result))
}

func (o *Outcome) write(a Action, contents []byte) *Outcome {
	o.Action = a
	o.Result = contents
	return o
}

func decideOrphan(p string, opts Options) (*Outcome, error) {
	o := &Outcome{Path: p}
	if err := o.readWorking(opts.Root); err != nil {
		return nil, err
	}
	if o.Existing == nil {
		o.Action = ActionUserDeleted
		return o, nil
	}
	o.Binary = textdiff.IsBinary(o.Existing)

	base, ok := opts.Snapshot.Base(p, o.Existing)
	if ok && base == string(o.Existing) {
		o.Action = ActionRemove
	} else {
		o.Action = ActionOrphan
	}
	return o, nil
}

func resolve(o *Outcome, s Strategy) error {
	c := &Conflict{
		Path:      o.Path,
		Existing:  o.Existing,
		Generated: o.Generated,
		Merged:    MergeResult{Text: string(o.Result), Conflicts: o.Conflicts},
		ModTime:   o.modTime,
		Size:      int64(len(o.Existing)),
	}

	res, err := s.Resolve(c)
	if err != nil {
		return fmt.Errorf("resolve conflict in %s: %w", o.Path, err)
	}
	switch res {
	case KeepMarkers:
	case TakeGenerated:
		o.write(ActionUpdate, o.Generated)
		o.Conflicts = 0
	case KeepExisting:
		o.Action = ActionKeep
		o.Result = nil
		o.Conflicts = 0
	default:
		return ErrCancelled
	}
	return nil
}

// Conflicts returns the paths written with conflict markers.
func (p *Plan) Conflicts() []string {
	var out []string
	for _, o := range p.Outcomes {
		if o.Action == ActionConflict {
			out = append(out, o.Path)
		}
	}
	return out
}

// Err returns a *ConflictDetectedError when any file carries markers.
func (p *Plan) Err() error {
	if paths := p.Conflicts(); len(paths) > 0 {
		return &ConflictDetectedError{Paths: paths}
	}
	return nil
}

// FormatErrors returns every formatter failure.
func (p *Plan) FormatErrors() []*FormatterError {
	var out []*FormatterError
	for _, o := range p.Outcomes {
		if o.FormatErr != nil {
			out = append(out, o.FormatErr)
		}
	}
	return out
}

// Changed returns the paths the plan writes or removes.
func (p *Plan) Changed() []string {
	var out []string
	for _, o := range p.Outcomes {
		if o.rewrites() || o.Action == ActionRemove {
			out = append(out, o.Path)
		}
	}
	return out
}

// Count returns how many outcomes have action a.
func (p *Plan) Count(a Action) int {
	n := 0
	for _, o := range p.Outcomes {
		if o.Action == a {
			n++
		}
	}
	return n
}

// Diffs describes every change the plan makes to the working directory.
func (p *Plan) Diffs() ([]*FileDiff, error) {
	var out []*FileDiff
	for _, o := range p.Outcomes {
		if !o.Action.Writes() && o.Action != ActionRemove {
			continue
		}
		d, err := DiffFile(o.Path, o.Existing, o.Final())
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

// Transaction stages the plan's writes and removals under root.
func (p *Plan) Transaction(root string) *Transaction {
	tx := NewTransaction(root)
	for _, o := range p.Outcomes {
		switch {
		case o.rewrites():
			tx.AddFile(o.Path, o.Result, o.mode)
		case o.Action == ActionRemove:
			tx.DeleteFile(o.Path)
		}
	}
	return tx
}
