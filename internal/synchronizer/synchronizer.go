// Package synchronizer pushes desired objects into the remote system with
// create-if-absent semantics.
package synchronizer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
)

// PlannedMoid stands in for the moid of an object a dry run would create.
const PlannedMoid = "(planned)"

// Remote is the view of the remote system the synchronizer works against.
// Find returns nil, nil when the object does not exist.
type Remote interface {
	Find(ctx context.Context, ref models.Reference, orgMoid string) (*models.RemoteObject, error)
	Candidates(ctx context.Context, kind models.Kind, orgMoid string) ([]models.RemoteObject, error)
	Create(ctx context.Context, obj models.DesiredObject, orgMoid string, deps map[models.Reference]models.RemoteObject) (*models.RemoteObject, error)
	Deploy(ctx context.Context, profile models.RemoteObject) error
}

// Options selects what a run does.
type Options struct {
	// Kinds limits processing to these kinds; empty means all. Objects of
	// other kinds must already exist remotely to be referenced.
	Kinds []models.Kind
	// DryRun checks dependencies and existence but creates nothing.
	DryRun bool
}

// Synchronizer processes desired objects in kind order: pools, policies,
// templates, profiles.
type Synchronizer struct {
	remote Remote
	opts   Options
}

// New creates a Synchronizer.
func New(remote Remote, opts Options) *Synchronizer {
	return &Synchronizer{remote: remote, opts: opts}
}

// Sync processes objects and appends one result per processed object to
// report. Per-object failures are recorded and the run continues. An error is
// returned only when the run was aborted (remote unavailable or context
// cancelled); the report then holds the results up to that point.
func (s *Synchronizer) Sync(ctx context.Context, objects []models.DesiredObject, report *models.Report) error {
	report.DryRun = s.opts.DryRun
	st := &state{
		remote:     s.remote,
		dryRun:     s.opts.DryRun,
		orgs:       make(map[string]string),
		resolved:   make(map[models.Key]models.RemoteObject),
		failed:     make(map[models.Key]error),
		candidates: make(map[string][]models.RemoteObject),
	}

	enabled := make(map[models.Kind]bool)
	for _, k := range s.opts.Kinds {
		enabled[k] = true
	}

	for _, kind := range models.SyncOrder {
		if len(enabled) > 0 && !enabled[kind] {
			continue
		}
		batch := ofKind(objects, kind)
		if len(batch) == 0 {
			continue
		}
		logging.Info(ctx, "syncing", zap.String(logging.FieldKind, string(kind)), zap.Int(logging.FieldCount, len(batch)))

		for _, obj := range batch {
			if err := ctx.Err(); err != nil {
				return abort(ctx, report, err)
			}
			res, err := st.process(ctx, obj)
			if res.Outcome != "" {
				logResult(ctx, res)
				report.Add(res)
			}
			if err != nil {
				return abort(ctx, report, err)
			}
		}
	}
	return nil
}

// Plan is Sync in dry-run mode.
func (s *Synchronizer) Plan(ctx context.Context, objects []models.DesiredObject, report *models.Report) error {
	dry := *s
	dry.opts.DryRun = true
	return dry.Sync(ctx, objects, report)
}

func abort(ctx context.Context, report *models.Report, err error) error {
	report.Abort(err)
	logging.Error(ctx, "run aborted", zap.Error(err))
	return err
}

// ofKind returns the objects of one kind in their original order, except
// that objects referring to another object of the same kind (a vNIC policy
// and its QoS policy) come last.
func ofKind(objects []models.DesiredObject, kind models.Kind) []models.DesiredObject {
	var plain, dependent []models.DesiredObject
	for _, o := range objects {
		if o.Kind != kind {
			continue
		}
		if refersTo(o, kind) {
			dependent = append(dependent, o)
		} else {
			plain = append(plain, o)
		}
	}
	return append(plain, dependent...)
}

func refersTo(obj models.DesiredObject, kind models.Kind) bool {
	for _, ref := range obj.Dependencies {
		if ref.Kind == kind {
			return true
		}
	}
	return false
}

func logResult(ctx context.Context, res models.Result) {
	fields := []zap.Field{
		zap.String(logging.FieldKind, string(res.Key.Kind)),
		zap.String(logging.FieldName, res.Key.Name),
		zap.String(logging.FieldOrg, res.Key.Organization),
		zap.String(logging.FieldOutcome, string(res.Outcome)),
	}
	if res.Key.Type != "" {
		fields = append(fields, zap.String(logging.FieldType, res.Key.Type))
	}
	switch res.Outcome {
	case models.OutcomeFailed:
		logging.Warn(ctx, "FAIL", append(fields, zap.Error(res.Err))...)
	case models.OutcomeExists:
		logging.Info(ctx, "SKIP (exists)", append(fields, zap.String(logging.FieldMoid, res.Moid))...)
	case models.OutcomePlanned:
		logging.Info(ctx, "PLAN (create)", fields...)
	default:
		logging.Info(ctx, "CREATED", append(fields, zap.String(logging.FieldMoid, res.Moid))...)
	}
}

// state is the resolution table of one run.
type state struct {
	remote     Remote
	dryRun     bool
	orgs       map[string]string                  // organization name -> moid
	resolved   map[models.Key]models.RemoteObject // objects of this run that exist or were created/planned
	failed     map[models.Key]error               // objects of this run that failed
	candidates map[string][]models.RemoteObject   // org moid -> remote templates
}

// fatal reports whether err must abort the run.
func fatal(err error) bool {
	return errors.Is(err, models.ErrRemoteUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// process handles one object. A non-nil error aborts the run; everything
// else is reported in the Result.
func (st *state) process(ctx context.Context, obj models.DesiredObject) (models.Result, error) {
	key := obj.Key()
	res := models.Result{Key: key}
	fail := func(err error) (models.Result, error) {
		if fatal(err) {
			return res, err
		}
		st.failed[key] = err
		res.Outcome = models.OutcomeFailed
		res.Err = err
		return res, nil
	}

	if prev, ok := st.resolved[key]; ok {
		res.Outcome = models.OutcomeExists
		res.Moid = prev.Moid
		res.Note = "duplicate of an earlier row"
		return res, nil
	}

	orgMoid, err := st.organization(ctx, obj.Organization)
	if err != nil {
		if fatal(err) {
			return res, err
		}
		return fail(&models.DependencyError{Object: key,
			Dependency: models.Reference{Kind: models.KindOrganization, Name: obj.Organization}, Err: err})
	}

	deps := make(map[models.Reference]models.RemoteObject, len(obj.Dependencies))
	for _, ref := range obj.Dependencies {
		ro, note, err := st.dependency(ctx, obj, orgMoid, ref)
		if err != nil {
			if fatal(err) {
				return res, err
			}
			return fail(&models.DependencyError{Object: key, Dependency: ref, Err: err})
		}
		if note != "" {
			res.Note = note
		}
		deps[ref] = ro
	}

	existing, err := st.remote.Find(ctx, obj.Ref(), orgMoid)
	if err != nil {
		return fail(err)
	}
	if existing != nil {
		st.resolved[key] = *existing
		res.Outcome = models.OutcomeExists
		res.Moid = existing.Moid
		return res, nil
	}

	if st.dryRun {
		st.resolved[key] = models.RemoteObject{Kind: obj.Kind, Type: obj.Subtype(), Name: obj.Name,
			Organization: orgMoid, Moid: PlannedMoid}
		res.Outcome = models.OutcomePlanned
		return res, nil
	}

	created, err := st.remote.Create(ctx, obj, orgMoid, deps)
	if err != nil {
		if !fatal(err) && !errors.Is(err, models.ErrCreationFailed) {
			err = &models.CreationError{Object: key, Err: err}
		}
		return fail(err)
	}
	st.resolved[key] = *created
	res.Outcome = models.OutcomeCreated
	res.Moid = created.Moid

	if spec, ok := obj.Attributes.(*models.ProfileSpec); ok && spec.Deploy {
		if err := st.remote.Deploy(ctx, *created); err != nil {
			res.Note = fmt.Sprintf("created but deploy failed: %v", err)
			if fatal(err) {
				return res, err
			}
		} else {
			res.Note = "deploy requested"
		}
	}
	return res, nil
}

func (st *state) organization(ctx context.Context, name string) (string, error) {
	if moid, ok := st.orgs[name]; ok {
		return moid, nil
	}
	ro, err := st.remote.Find(ctx, models.Reference{Kind: models.KindOrganization, Name: name}, "")
	if err != nil {
		return "", err
	}
	if ro == nil {
		return "", fmt.Errorf("organization %q not found", name)
	}
	st.orgs[name] = ro.Moid
	return ro.Moid, nil
}

// refKey is the key a reference from obj resolves to within this run.
func refKey(obj models.DesiredObject, ref models.Reference) models.Key {
	k := models.Key{Kind: ref.Kind, Type: ref.Type, Name: ref.Name, Organization: obj.Organization}
	if ref.Kind == models.KindServer {
		k.Organization = ""
	}
	return k
}

// dependency resolves ref against this run first, then remotely. Template
// references fall back to normalized name matching; note describes such a
// match.
func (st *state) dependency(ctx context.Context, obj models.DesiredObject, orgMoid string, ref models.Reference) (ro models.RemoteObject, note string, err error) {
	key := refKey(obj, ref)
	if ferr, ok := st.failed[key]; ok {
		return ro, "", fmt.Errorf("failed earlier in this run: %w", ferr)
	}
	if r, ok := st.resolved[key]; ok {
		return r, "", nil
	}

	scope := orgMoid
	if ref.Kind == models.KindServer {
		scope = ""
	}
	found, err := st.remote.Find(ctx, ref, scope)
	if err != nil {
		return ro, "", err
	}
	if found != nil {
		return *found, "", nil
	}

	if ref.Kind == models.KindTemplate {
		cands, err := st.templateCandidates(ctx, obj.Organization, orgMoid)
		if err != nil {
			return ro, "", err
		}
		if m, ok := MatchName(ref.Name, cands); ok {
			return m, fmt.Sprintf("template %q matched %q", ref.Name, m.Name), nil
		}
	}
	return ro, "", errors.New("not found")
}

// templateCandidates are the remote templates of the organization plus the
// templates this run resolved in it.
func (st *state) templateCandidates(ctx context.Context, orgName, orgMoid string) ([]models.RemoteObject, error) {
	remote, ok := st.candidates[orgMoid]
	if !ok {
		var err error
		if remote, err = st.remote.Candidates(ctx, models.KindTemplate, orgMoid); err != nil {
			return nil, err
		}
		st.candidates[orgMoid] = remote
	}
	cands := append([]models.RemoteObject(nil), remote...)
	for k, ro := range st.resolved {
		if k.Kind == models.KindTemplate && k.Organization == orgName {
			ro.Name = k.Name
			cands = append(cands, ro)
		}
	}
	return cands, nil
}
