// Package workflow maps workbench actions onto the workbook and the
// synchronizer.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
	"github.com/rflorenc/intersight-workbench/internal/platform"
	"github.com/rflorenc/intersight-workbench/internal/synchronizer"
	"github.com/rflorenc/intersight-workbench/internal/workbook"
)

// Action is a workbench action, as named on the command line.
type Action string

const (
	ActionSetup          Action = "setup"
	ActionGetInfo        Action = "get-info"
	ActionPush           Action = "push"
	ActionUpdateServers  Action = "update-servers"
	ActionTemplate       Action = "template"
	ActionProfiles       Action = "profiles"
	ActionAll            Action = "all"
	ActionCreateTemplate Action = "create-template"
)

// Actions lists every action.
var Actions = []Action{
	ActionSetup, ActionGetInfo, ActionPush, ActionUpdateServers,
	ActionTemplate, ActionProfiles, ActionAll, ActionCreateTemplate,
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	names := make([]string, len(Actions))
	for i, a := range Actions {
		names[i] = string(a)
	}
	return "", fmt.Errorf("unknown action %q (expected one of %s)", s, strings.Join(names, ", "))
}

// Offline reports whether the action runs without a remote session.
func (a Action) Offline() bool { return a == ActionCreateTemplate }

// Kinds returns the kinds the action pushes; nil for actions that do not
// push. ActionAll pushes every kind.
func (a Action) Kinds() []models.Kind {
	switch a {
	case ActionPush:
		return []models.Kind{models.KindPool, models.KindPolicy}
	case ActionTemplate:
		return []models.Kind{models.KindTemplate}
	case ActionProfiles:
		return []models.Kind{models.KindProfile}
	case ActionAll:
		return models.SyncOrder
	}
	return nil
}

// Remote is a live session with the remote system.
type Remote interface {
	synchronizer.Remote
	Inventory(ctx context.Context) (*platform.Inventory, error)
}

// Options configure a Runner.
type Options struct {
	// File is the workbook read by the action.
	File string
	// Output is where the workbook is written; defaults to File.
	Output string
	// Force lets setup and create-template replace an existing Output.
	Force bool
	// DryRun plans pushes without creating anything or writing the workbook.
	DryRun bool
}

func (o Options) output() string {
	if o.Output != "" {
		return o.Output
	}
	return o.File
}

// Result is what an action produced.
type Result struct {
	Report *models.Report
	// Inventory is set by actions that loaded it.
	Inventory *platform.Inventory
	// Written is the workbook path the action saved, if any.
	Written string
}

// Runner executes actions.
type Runner struct {
	remote Remote
	opts   Options
}

// NewRunner creates a Runner. remote may be nil when only offline actions run.
func NewRunner(remote Remote, opts Options) *Runner {
	return &Runner{remote: remote, opts: opts}
}

// Run executes action. The result and its report are returned even when an
// error aborts the action part way.
func (r *Runner) Run(ctx context.Context, action Action) (*Result, error) {
	res := &Result{Report: models.NewReport(string(action))}
	res.Report.DryRun = r.opts.DryRun
	defer res.Report.Finish()

	ctx = logging.AddFields(ctx, zap.String(logging.FieldRunID, res.Report.RunID), zap.String(logging.FieldAction, string(action)))
	logging.Info(ctx, "action started", zap.String(logging.FieldFile, r.opts.File))

	if r.opts.File == "" {
		return res, errors.New("no workbook file given")
	}
	if !action.Offline() && r.remote == nil {
		return res, fmt.Errorf("action %s needs a remote session", action)
	}

	var err error
	switch action {
	case ActionCreateTemplate:
		err = r.createTemplate(ctx, res)
	case ActionSetup:
		err = r.setup(ctx, res)
	case ActionGetInfo, ActionUpdateServers:
		err = r.refresh(ctx, res)
	default:
		if action.Kinds() == nil {
			return res, fmt.Errorf("unknown action %q", action)
		}
		err = r.push(ctx, res, action.Kinds())
	}
	if err != nil {
		logging.Error(ctx, "action failed", zap.Error(err))
		return res, err
	}
	logging.Info(ctx, "action finished",
		zap.Int("created", res.Report.Count(models.OutcomeCreated)),
		zap.Int("exists", res.Report.Count(models.OutcomeExists)),
		zap.Int("planned", res.Report.Count(models.OutcomePlanned)),
		zap.Int("failed", res.Report.Count(models.OutcomeFailed)),
		zap.Int("invalid", len(res.Report.Validation)))
	return res, nil
}

// createTemplate writes a sample workbook without contacting the remote system.
func (r *Runner) createTemplate(ctx context.Context, res *Result) error {
	f, err := workbook.Build(workbook.Samples())
	if err != nil {
		return err
	}
	defer f.Close()
	if err := workbook.Save(f, r.opts.output(), r.opts.Force); err != nil {
		return err
	}
	res.Written = r.opts.output()
	logging.Info(ctx, "workbook created", zap.String(logging.FieldFile, res.Written))
	return nil
}

// setup writes a sample workbook whose dropdowns offer the remote inventory.
func (r *Runner) setup(ctx context.Context, res *Result) error {
	out := r.opts.output()
	if !r.opts.Force && exists(out) {
		return fmt.Errorf("%s: %w", out, workbook.ErrExists)
	}
	inv, err := r.remote.Inventory(ctx)
	if err != nil {
		return err
	}
	res.Inventory = inv

	f, err := workbook.Build(workbook.Samples())
	if err != nil {
		return err
	}
	defer f.Close()
	if err := workbook.Populate(f, Choices(inv)); err != nil {
		return err
	}
	if err := workbook.Save(f, out, true); err != nil {
		return err
	}
	res.Written = out
	logging.Info(ctx, "workbook created", zap.String(logging.FieldFile, out))
	return nil
}

// refresh rewrites the dropdown choices of an existing workbook.
func (r *Runner) refresh(ctx context.Context, res *Result) error {
	inv, err := r.remote.Inventory(ctx)
	if err != nil {
		return err
	}
	res.Inventory = inv

	f, err := workbook.Open(r.opts.File)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := workbook.Populate(f, Choices(inv)); err != nil {
		return err
	}
	return r.save(ctx, res, f)
}

// push refreshes the workbook choices, then synchronizes the desired
// objects of kinds. A dry run only plans and leaves the workbook untouched.
func (r *Runner) push(ctx context.Context, res *Result, kinds []models.Kind) error {
	f, err := workbook.Open(r.opts.File)
	if err != nil {
		return err
	}
	defer f.Close()

	objects, invalid, err := workbook.Read(f)
	if err != nil {
		return err
	}
	res.Report.Validation = invalid
	for _, v := range invalid {
		logging.Warn(ctx, "row rejected", zap.String(logging.FieldSheet, v.Sheet), zap.Int(logging.FieldRow, v.Row), zap.Error(v))
	}

	inv, err := r.remote.Inventory(ctx)
	if err != nil {
		return err
	}
	res.Inventory = inv
	if !r.opts.DryRun {
		if err := workbook.Populate(f, Choices(inv)); err != nil {
			return err
		}
		if err := r.save(ctx, res, f); err != nil {
			return err
		}
	}

	s := synchronizer.New(r.remote, synchronizer.Options{Kinds: kinds, DryRun: r.opts.DryRun})
	return s.Sync(ctx, objects, res.Report)
}

// save writes f to the output path. Writing back to the input file is an
// update; any other existing file needs Force.
func (r *Runner) save(ctx context.Context, res *Result, f *excelize.File) error {
	out := r.opts.output()
	if err := workbook.Save(f, out, r.opts.Force || out == r.opts.File); err != nil {
		return err
	}
	res.Written = out
	logging.Info(ctx, "workbook updated", zap.String(logging.FieldFile, out))
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Choices are the dropdown values the workbook offers for inv.
func Choices(inv *platform.Inventory) workbook.Choices {
	c := workbook.Choices{
		Organizations: inv.OrganizationNames(),
		Templates:     inv.TemplateNames(),
		UUIDPools:     inv.PoolNames(models.PoolUUID),
		MACPools:      inv.PoolNames(models.PoolMAC),
		Policies:      make(map[models.PolicyType][]string),
		Servers:       inv.ServerLabels(),
		Groups:        inv.Groups,
	}
	for _, t := range models.PolicyTypes {
		c.Policies[t] = inv.PolicyNames(t)
	}
	return c
}
