package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rflorenc/intersight-workbench/internal/models"
	"github.com/rflorenc/intersight-workbench/internal/platform"
	"github.com/rflorenc/intersight-workbench/internal/workbook"
)

type fakeRemote struct {
	mu        sync.Mutex
	inventory *platform.Inventory
	invErr    error
	invCalls  int
	objects   map[string]models.RemoteObject
	creates   int
	nextMoid  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		objects: make(map[string]models.RemoteObject),
		inventory: &platform.Inventory{
			Organizations: models.NewListing([]models.RemoteObject{
				{Kind: models.KindOrganization, Name: "default", Moid: "org-default"},
			}),
			Servers: []models.Server{
				{Moid: "srv-1", Name: "S1", Serial: "SN1", ObjectType: "compute.RackUnit"},
				{Moid: "srv-2", Name: "S2", Serial: "SN2", ObjectType: "compute.Blade"},
			},
			Groups: models.GroupMapping{
				"AI POD Servers": {"S1 (SN1)", "S2 (SN2)"},
				"Empty":          nil,
			},
			Pools:     map[models.PoolType]*models.Listing{},
			Policies:  map[models.PolicyType]*models.Listing{},
			Templates: models.NewListing(nil),
		},
	}
}

func objectKey(ref models.Reference, orgMoid string) string {
	return fmt.Sprintf("%s|%s|%s|%s", ref.Kind, ref.Type, ref.Name, orgMoid)
}

func (f *fakeRemote) Inventory(ctx context.Context) (*platform.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invCalls++
	if f.invErr != nil {
		return nil, f.invErr
	}
	return f.inventory, nil
}

func (f *fakeRemote) Find(ctx context.Context, ref models.Reference, orgMoid string) (*models.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch ref.Kind {
	case models.KindOrganization:
		if o, ok := f.inventory.Organizations.Get(ref.Name); ok {
			return &o, nil
		}
		return nil, nil
	case models.KindServer:
		for _, s := range f.inventory.Servers {
			if s.Label() == ref.Name {
				return &models.RemoteObject{Kind: models.KindServer, Type: s.ObjectType, Name: s.Label(), Moid: s.Moid}, nil
			}
		}
		return nil, nil
	}
	if o, ok := f.objects[objectKey(ref, orgMoid)]; ok {
		return &o, nil
	}
	return nil, nil
}

func (f *fakeRemote) Candidates(ctx context.Context, kind models.Kind, orgMoid string) ([]models.RemoteObject, error) {
	return nil, nil
}

func (f *fakeRemote) Create(ctx context.Context, obj models.DesiredObject, orgMoid string, deps map[models.Reference]models.RemoteObject) (*models.RemoteObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.nextMoid++
	ro := models.RemoteObject{Kind: obj.Kind, Type: obj.Subtype(), Name: obj.Name, Organization: orgMoid,
		Moid: fmt.Sprintf("moid-%d", f.nextMoid)}
	f.objects[objectKey(obj.Ref(), orgMoid)] = ro
	return &ro, nil
}

func (f *fakeRemote) Deploy(ctx context.Context, profile models.RemoteObject) error { return nil }

func TestParseAction(t *testing.T) {
	for _, a := range Actions {
		got, err := ParseAction(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseAction("deploy-everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create-template")

	assert.True(t, ActionCreateTemplate.Offline())
	assert.False(t, ActionSetup.Offline())
	assert.Nil(t, ActionGetInfo.Kinds())
	assert.Equal(t, []models.Kind{models.KindPool, models.KindPolicy}, ActionPush.Kinds())
}

func TestCreateTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output", "wb.xlsx")
	ctx := context.Background()

	_, err := NewRunner(nil, Options{File: path}).Run(ctx, ActionCreateTemplate)
	require.NoError(t, err)

	f, err := workbook.Open(path)
	require.NoError(t, err)
	objects, invalid, err := workbook.Read(f)
	f.Close()
	require.NoError(t, err)
	assert.Empty(t, invalid)
	assert.Equal(t, workbook.Samples(), objects)

	_, err = NewRunner(nil, Options{File: path}).Run(ctx, ActionCreateTemplate)
	assert.ErrorIs(t, err, workbook.ErrExists)

	res, err := NewRunner(nil, Options{File: path, Force: true}).Run(ctx, ActionCreateTemplate)
	require.NoError(t, err)
	assert.Equal(t, path, res.Written)
}

func TestOnlineActionNeedsRemote(t *testing.T) {
	_, err := NewRunner(nil, Options{File: "wb.xlsx"}).Run(context.Background(), ActionPush)
	assert.Error(t, err)

	_, err = NewRunner(newFakeRemote(), Options{}).Run(context.Background(), ActionPush)
	assert.Error(t, err)
}

func TestSetup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wb.xlsx")
	remote := newFakeRemote()
	ctx := context.Background()

	res, err := NewRunner(remote, Options{File: path}).Run(ctx, ActionSetup)
	require.NoError(t, err)
	assert.Same(t, remote.inventory, res.Inventory)

	f, err := workbook.Open(path)
	require.NoError(t, err)
	defer f.Close()
	opts, err := workbook.ServerOptions(f, "AI POD Servers")
	require.NoError(t, err)
	assert.Equal(t, []string{"S1 (SN1)", "S2 (SN2)"}, opts)
	opts, err = workbook.ServerOptions(f, "Empty")
	require.NoError(t, err)
	assert.Empty(t, opts)

	// An existing workbook is kept unless forced, before any remote call.
	_, err = NewRunner(remote, Options{File: path}).Run(ctx, ActionSetup)
	assert.ErrorIs(t, err, workbook.ErrExists)
	assert.Equal(t, 1, remote.invCalls)
}

func createWorkbook(t *testing.T, objects []models.DesiredObject) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wb.xlsx")
	f, err := workbook.Build(objects)
	require.NoError(t, err)
	require.NoError(t, workbook.Save(f, path, false))
	f.Close()
	return path
}

func TestPushTemplateProfilesIdempotent(t *testing.T) {
	path := createWorkbook(t, workbook.Samples())
	remote := newFakeRemote()
	ctx := context.Background()
	run := func(a Action) *models.Report {
		res, err := NewRunner(remote, Options{File: path}).Run(ctx, a)
		require.NoError(t, err)
		require.False(t, res.Report.HasFailures(), "%+v", res.Report)
		return res.Report
	}

	rep := run(ActionPush)
	assert.Equal(t, 9, rep.Count(models.OutcomeCreated))
	assert.Len(t, rep.Results, 9)

	rep = run(ActionTemplate)
	assert.Equal(t, 1, rep.Count(models.OutcomeCreated))

	rep = run(ActionProfiles)
	assert.Equal(t, 8, rep.Count(models.OutcomeCreated))

	rep = run(ActionAll)
	assert.Equal(t, 0, rep.Count(models.OutcomeCreated))
	assert.Equal(t, 18, rep.Count(models.OutcomeExists))
	assert.Equal(t, 18, remote.creates)

	// The push refreshed the workbook's dropdowns in place.
	f, err := workbook.Open(path)
	require.NoError(t, err)
	defer f.Close()
	opts, err := workbook.ServerOptions(f, "AI POD Servers")
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestPushDryRun(t *testing.T) {
	path := createWorkbook(t, workbook.Samples())
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	remote := newFakeRemote()

	res, err := NewRunner(remote, Options{File: path, DryRun: true}).Run(context.Background(), ActionAll)
	require.NoError(t, err)
	assert.True(t, res.Report.DryRun)
	assert.Equal(t, 18, res.Report.Count(models.OutcomePlanned))
	assert.Zero(t, remote.creates)
	assert.Empty(t, res.Written)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPushRemoteUnavailable(t *testing.T) {
	path := createWorkbook(t, workbook.Samples())
	remote := newFakeRemote()
	remote.invErr = &models.RemoteError{Op: "GET organization/Organizations", Status: 401, Err: fmt.Errorf("unauthorized")}

	res, err := NewRunner(remote, Options{File: path}).Run(context.Background(), ActionPush)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRemoteUnavailable)
	assert.Empty(t, res.Report.Results)
	assert.Zero(t, remote.creates)
}

func TestPushReportsInvalidRows(t *testing.T) {
	objects := []models.DesiredObject{
		models.NewDesiredObject("MAC-A", "default", &models.PoolSpec{Type: models.PoolMAC, StartAddress: "00:25:B5:00:00:00", Size: 16}),
		models.NewDesiredObject("MAC-B", "default", &models.PoolSpec{Type: models.PoolMAC, StartAddress: "00:25:B5:00:01:00", Size: 0}),
	}
	path := createWorkbook(t, objects)

	res, err := NewRunner(newFakeRemote(), Options{File: path}).Run(context.Background(), ActionPush)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Report.Count(models.OutcomeCreated))
	require.Len(t, res.Report.Validation, 1)
	assert.Equal(t, 3, res.Report.Validation[0].Row)
	assert.True(t, res.Report.HasFailures())
}

func TestRefreshOutput(t *testing.T) {
	path := createWorkbook(t, workbook.Samples())
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "refreshed.xlsx")
	ctx := context.Background()

	res, err := NewRunner(newFakeRemote(), Options{File: path, Output: out}).Run(ctx, ActionGetInfo)
	require.NoError(t, err)
	assert.Equal(t, out, res.Written)
	require.NotNil(t, res.Inventory)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = NewRunner(newFakeRemote(), Options{File: path, Output: out}).Run(ctx, ActionUpdateServers)
	assert.ErrorIs(t, err, workbook.ErrExists)
	_, err = NewRunner(newFakeRemote(), Options{File: path, Output: out, Force: true}).Run(ctx, ActionUpdateServers)
	assert.NoError(t, err)

	_, err = NewRunner(newFakeRemote(), Options{File: filepath.Join(t.TempDir(), "missing.xlsx")}).Run(ctx, ActionGetInfo)
	assert.Error(t, err)
}

func TestChoices(t *testing.T) {
	inv := newFakeRemote().inventory
	inv.Policies[models.PolicyBoot] = models.NewListing([]models.RemoteObject{{Name: "Boot-B"}, {Name: "Boot-A"}})
	inv.Pools[models.PoolMAC] = models.NewListing([]models.RemoteObject{{Name: "MAC-A"}})
	c := Choices(inv)
	assert.Equal(t, []string{"default"}, c.Organizations)
	assert.Equal(t, []string{"S1 (SN1)", "S2 (SN2)"}, c.Servers)
	assert.Equal(t, []string{"Boot-A", "Boot-B"}, c.Policies[models.PolicyBoot])
	assert.Empty(t, c.Policies[models.PolicyBIOS])
	assert.Empty(t, c.UUIDPools)
	assert.Equal(t, []string{"MAC-A"}, c.MACPools)
}
