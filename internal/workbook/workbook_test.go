package workbook

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

func TestBuildReadRoundTrip(t *testing.T) {
	f, err := Build(Samples())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "out", "wb.xlsx")
	require.NoError(t, Save(f, path, false))
	f.Close()

	g, err := Open(path)
	require.NoError(t, err)
	defer g.Close()

	objects, invalid, err := Read(g)
	require.NoError(t, err)
	assert.Empty(t, invalid)
	assert.Equal(t, Samples(), objects)
}

func TestNewLayout(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	for _, name := range []string{SheetPools, SheetPolicies, SheetTemplate, SheetProfiles, SheetDocs, SheetDependencies, SheetServerMap, SheetLists} {
		assert.Contains(t, sheets, name)
	}
	assert.Equal(t, SheetPools, f.GetSheetName(f.GetActiveSheetIndex()))

	rows, err := f.GetRows(SheetProfiles)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Profile Name*", "Description", "Organization*", "Resource Group",
		"Template Name*", "Server", "Deploy*"}, rows[0])

	assert.Equal(t, []string{"FIAttached", "Standalone"}, listColumn(t, f, listPlatforms))
	assert.Equal(t, []string{"Yes", "No"}, listColumn(t, f, listDeploy))
	assert.Empty(t, listColumn(t, f, listOrganizations))
}

// listColumn returns the values of a Lists column up to the first blank.
func listColumn(t *testing.T, f *excelize.File, l list) []string {
	t.Helper()
	head, err := f.GetCellValue(SheetLists, l.Column+"1")
	require.NoError(t, err)
	require.Equal(t, l.Header, head)
	var out []string
	for row := 2; ; row++ {
		v, err := f.GetCellValue(SheetLists, fmt.Sprintf("%s%d", l.Column, row))
		require.NoError(t, err)
		if v == "" {
			return out
		}
		out = append(out, v)
	}
}

func TestDependenciesSheet(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetDependencies)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Component", "Depends On", "Column", "Requirement"},
		{"Pools", "Organization", "Organization", "Required"},
		{"Policies", "Organization", "Organization", "Required"},
		{"Policies (vNIC)", "MAC Pool", "MAC Pool A", "Optional"},
		{"Policies (vNIC)", "MAC Pool", "MAC Pool B", "Optional"},
		{"Policies (vNIC)", "QoS Policy", "QoS Policy", "Optional"},
		{"Template", "Organization", "Organization", "Required"},
		{"Template", "BIOS Policy", "BIOS Policy", "Optional"},
		{"Template", "Boot Policy", "Boot Policy", "Optional"},
		{"Template", "vNIC Policy", "LAN Connectivity Policy", "Optional"},
		{"Template", "Storage Policy", "Storage Policy", "Optional"},
		{"Template", "UUID Pool", "UUID Pool", "Optional"},
		{"Profiles", "Organization", "Organization", "Required"},
		{"Profiles", "Template", "Template Name", "Required"},
		{"Profiles", "Server", "Server", "Optional"},
	}, rows)

	// Every column named there exists on its sheet.
	for _, row := range rows[1:] {
		sheet, _, _ := strings.Cut(row[0], " (")
		header, err := f.GetRows(sheet)
		require.NoError(t, err)
		assert.Contains(t, strings.Join(header[0], "|"), row[2], "sheet %s", sheet)
	}
}

func setRows(t *testing.T, f *excelize.File, sheet string, rows ...[]interface{}) {
	t.Helper()
	for i := range rows {
		require.NoError(t, f.SetSheetRow(sheet, cellName(1, i+2), &rows[i]))
	}
}

func TestReadValidation(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	defer f.Close()

	setRows(t, f, SheetPools,
		[]interface{}{"MAC Pool", "P1", "", "00-25-b5-00-00-00", 10, "default"},
		[]interface{}{"Bogus Pool", "P2", "", "x", 1, "default"},
		[]interface{}{"UUID Pool", "P3", "", "1", 0, "default"},
		[]interface{}{"", "", "only a description"},
		[]interface{}{"MAC Pool", "P4", "", "00:25:B5:00:00:10", 5, ""},
		[]interface{}{"MAC Pool", "P1", "", "00:25:B5:00:00:20", 5, "default"},
		[]interface{}{"uuid", "P5", "", "0000-0000000000FF", "64", "AI"},
	)
	setRows(t, f, SheetPolicies,
		[]interface{}{"bios", "B1", "", "default"},
		[]interface{}{"Firmware", "F1", "", "default"},
		[]interface{}{"vNIC", "L1", "", "default", "P1", "", "Q1"},
		[]interface{}{"QoS", "Q2", "", "default", "P1"},
	)
	setRows(t, f, SheetTemplate,
		[]interface{}{"T1", "default", "", "", "", "B1"},
		[]interface{}{"T2", "default", "", "", "Blade"},
		[]interface{}{"", "default", "", "orphan", "FIAttached", "B1"},
	)
	setRows(t, f, SheetProfiles,
		[]interface{}{"S1", "", "default", "", "T1", "", "maybe"},
		[]interface{}{"S2", "", "default", "", "", "", ""},
		[]interface{}{"S3", "host", "default", "RG", "T1", "S1 (SN1)", "Yes"},
	)

	objects, invalid, err := Read(f)
	require.NoError(t, err)

	var keys []string
	for _, o := range objects {
		keys = append(keys, string(o.Kind)+"/"+o.Name)
	}
	assert.Equal(t, []string{"pool/P1", "pool/P5", "policy/B1", "policy/L1", "template/T1", "profile/S3"}, keys)

	assert.Equal(t, "00:25:B5:00:00:00", objects[0].Attributes.(*models.PoolSpec).StartAddress)
	assert.Equal(t, &models.PoolSpec{Type: models.PoolUUID, StartAddress: "0000-0000000000FF", Size: 64},
		objects[1].Attributes)
	assert.Equal(t, models.PolicyBIOS, objects[2].Attributes.(*models.PolicySpec).Type)
	assert.Equal(t, []models.Reference{
		{Kind: models.KindPool, Type: "MAC", Name: "P1"},
		{Kind: models.KindPolicy, Type: "QoS", Name: "Q1"},
	}, objects[3].Dependencies)
	tmpl := objects[4].Attributes.(*models.TemplateSpec)
	assert.Equal(t, models.PlatformFIAttached, tmpl.TargetPlatform)
	assert.Equal(t, []models.Reference{{Kind: models.KindPolicy, Type: "BIOS", Name: "B1"}}, objects[4].Dependencies)
	assert.Equal(t, &models.ProfileSpec{Description: "host", ResourceGroup: "RG", Template: "T1",
		Server: "S1 (SN1)", Deploy: true}, objects[5].Attributes)

	type loc struct {
		sheet string
		row   int
		field string
	}
	var got []loc
	for _, v := range invalid {
		assert.True(t, errors.Is(v, models.ErrValidation))
		got = append(got, loc{v.Sheet, v.Row, v.Field})
	}
	assert.Equal(t, []loc{
		{SheetPools, 3, "Pool Type"},
		{SheetPools, 4, "Size"},
		{SheetPools, 6, "Organization"},
		{SheetPools, 7, "Pool Name"},
		{SheetPolicies, 3, "Policy Type"},
		{SheetPolicies, 5, "MAC Pool A"},
		{SheetTemplate, 3, "Target Platform"},
		{SheetTemplate, 4, "Template Name"},
		{SheetProfiles, 2, "Deploy"},
		{SheetProfiles, 3, "Template Name"},
	}, got)
	assert.Contains(t, invalid[3].Error(), "duplicate of row 2")
	assert.Contains(t, invalid[5].Error(), "only applies to vNIC policies")
	assert.Contains(t, invalid[7].Error(), "required")
}

func TestReadHeaderNormalization(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	for _, l := range layouts {
		_, err := f.NewSheet(l.Name)
		require.NoError(t, err)
		titles := make([]interface{}, len(l.Columns))
		for i, c := range l.Columns {
			titles[i] = c.Header
		}
		if l.Name == SheetPools {
			titles = []interface{}{"ORGANIZATION", "size*", "Start  Address", "poolname", "Pool Type *"}
		}
		require.NoError(t, f.SetSheetRow(l.Name, "A1", &titles))
	}
	setRows(t, f, SheetPools, []interface{}{"AI", "8", "00:25:B5:00:00:00", "MAC-1", "MAC Pool"})

	objects, invalid, err := Read(f)
	require.NoError(t, err)
	assert.Empty(t, invalid)
	require.Len(t, objects, 1)
	assert.Equal(t, models.Key{Kind: models.KindPool, Type: "MAC", Name: "MAC-1", Organization: "AI"}, objects[0].Key())
	assert.Equal(t, 8, objects[0].Attributes.(*models.PoolSpec).Size)
}

func TestReadStructuralErrors(t *testing.T) {
	t.Run("missing column", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)
		defer f.Close()
		require.NoError(t, f.SetCellValue(SheetPolicies, "A1", "Kind"))
		_, _, err = Read(f)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Policy Type")
	})
	t.Run("missing sheet", func(t *testing.T) {
		f, err := New()
		require.NoError(t, err)
		defer f.Close()
		require.NoError(t, f.DeleteSheet(SheetProfiles))
		_, _, err = Read(f)
		assert.Error(t, err)
	})
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"256", 256, false},
		{"256.0", 256, false},
		{"0", 0, true},
		{"-4", 0, true},
		{"1.5", 0, true},
		{"", 0, true},
		{"many", 0, true},
	}
	for _, tc := range tests {
		got, err := parseSize(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		assert.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestSave(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	defer f.Close()

	path := filepath.Join(t.TempDir(), "nested", "dir", "wb.xlsx")
	require.NoError(t, Save(f, path, false))
	err = Save(f, path, false)
	assert.ErrorIs(t, err, ErrExists)
	assert.NoError(t, Save(f, path, true))

	_, err = Open(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}

func testChoices() Choices {
	return Choices{
		Organizations: []string{"default", "AI", "default"},
		Templates:     []string{"Remote-T"},
		UUIDPools:     []string{"Remote-UUID"},
		MACPools:      []string{"Remote-MAC"},
		Policies:      map[models.PolicyType][]string{models.PolicyBIOS: {"Remote-BIOS"}},
		Servers:       []string{"S3 (C)", "S1 (A)", "S2 (B)"},
		Groups: models.GroupMapping{
			"G1": {"S1 (A)", "S2 (B)"},
			"G2": {},
		},
	}
}

func serverValidations(t *testing.T, f *excelize.File) []*excelize.DataValidation {
	t.Helper()
	dvs, err := f.GetDataValidations(SheetProfiles)
	require.NoError(t, err)
	var out []*excelize.DataValidation
	for _, dv := range dvs {
		if dv.Sqref == "F2:F1000" {
			out = append(out, dv)
		}
	}
	return out
}

func TestPopulateServerDropdown(t *testing.T) {
	f, err := Build(Samples())
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, Populate(f, testChoices()))

	opts, err := ServerOptions(f, "G1")
	require.NoError(t, err)
	assert.Equal(t, []string{"S1 (A)", "S2 (B)"}, opts)

	opts, err = ServerOptions(f, "G2")
	require.NoError(t, err)
	assert.Empty(t, opts)

	_, err = ServerOptions(f, "G3")
	assert.Error(t, err)

	dvs := serverValidations(t, f)
	require.Len(t, dvs, 1)
	assert.Contains(t, dvs[0].Formula1, "INDIRECT(VLOOKUP($D2,RG_Index,2,FALSE))")

	// The mapping survives a save and reopen.
	path := filepath.Join(t.TempDir(), "wb.xlsx")
	require.NoError(t, Save(f, path, false))
	g, err := Open(path)
	require.NoError(t, err)
	defer g.Close()
	opts, err = ServerOptions(g, "G1")
	require.NoError(t, err)
	assert.Equal(t, []string{"S1 (A)", "S2 (B)"}, opts)
}

func TestPopulateLists(t *testing.T) {
	f, err := Build(Samples())
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, Populate(f, testChoices()))

	assert.Equal(t, []string{"AI", "default"}, listColumn(t, f, listOrganizations))
	assert.Equal(t, []string{"G1", "G2"}, listColumn(t, f, listResourceGroup))
	assert.Equal(t, []string{"Ai_POD_Template", "Remote-T"}, listColumn(t, f, listTemplates))
	assert.Equal(t, []string{"Ai_POD-UUID-Pool", "Remote-UUID"}, listColumn(t, f, listUUIDPools))
	assert.Equal(t, []string{"Ai_POD-BIOS", "Remote-BIOS"}, listColumn(t, f, listPolicies[models.PolicyBIOS]))
	assert.Equal(t, []string{"Ai_POD-QoS"}, listColumn(t, f, listPolicies[models.PolicyQoS]))
	assert.Equal(t, []string{"Ai_POD-MAC-A", "Ai_POD-MAC-B", "Remote-MAC"}, listColumn(t, f, listMACPools))
	assert.Equal(t, []string{"S1 (A)", "S2 (B)", "S3 (C)"}, listColumn(t, f, listServers))

	// Populating leaves the desired rows alone.
	objects, invalid, err := Read(f)
	require.NoError(t, err)
	assert.Empty(t, invalid)
	assert.Equal(t, Samples(), objects)
}

func TestPopulateWithoutGroups(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	defer f.Close()
	c := testChoices()
	c.Groups = nil
	require.NoError(t, Populate(f, c))

	dvs := serverValidations(t, f)
	require.Len(t, dvs, 1)
	assert.Contains(t, dvs[0].Formula1, "Lists!$I$2:$I$4")
}

func TestPopulateReplacesPreviousMap(t *testing.T) {
	f, err := New()
	require.NoError(t, err)
	defer f.Close()

	c := testChoices()
	c.Groups["Old"] = []string{"S3 (C)"}
	require.NoError(t, Populate(f, c))
	_, err = ServerOptions(f, "Old")
	require.NoError(t, err)

	require.NoError(t, Populate(f, testChoices()))
	_, err = ServerOptions(f, "Old")
	assert.Error(t, err)

	var names []string
	for _, dn := range f.GetDefinedName() {
		if strings.HasPrefix(dn.Name, listPrefix) {
			names = append(names, dn.Name)
		}
	}
	assert.Len(t, names, 3) // G1, G2 and the index
}

var listNameRE = regexp.MustCompile(`^RG_[A-Za-z0-9_]{0,24}_[0-9a-f]{8}(_[0-9]+)?$`)

func TestListNames(t *testing.T) {
	groups := []string{
		"AI POD Servers",
		"Rack/Row 12 - Building A, Floor 3",
		"Rack/Row 12 - Building A, Floor 4",
		"ünïcode",
	}
	names := ListNames(groups)
	require.Len(t, names, len(groups))

	reversed := ListNames([]string{groups[3], groups[2], groups[1], groups[0]})
	assert.Equal(t, names, reversed)

	seen := make(map[string]bool)
	for _, g := range groups {
		n := names[g]
		assert.Regexp(t, listNameRE, n)
		assert.False(t, seen[strings.ToLower(n)], "duplicate %s", n)
		seen[strings.ToLower(n)] = true
	}
	assert.True(t, strings.HasPrefix(names["AI POD Servers"], "RG_AI_POD_Servers_"))
	assert.True(t, strings.HasPrefix(names["Rack/Row 12 - Building A, Floor 3"], "RG_Rack_Row_12___Building_A_"))
}

func TestListNamesCollision(t *testing.T) {
	orig := groupHash
	groupHash = func(string) uint64 { return 42 }
	defer func() { groupHash = orig }()

	names := ListNames([]string{"A-B", "A B", "A.B"})
	assert.Equal(t, map[string]string{
		"A B": "RG_A_B_0000002a",
		"A-B": "RG_A_B_0000002a_2",
		"A.B": "RG_A_B_0000002a_3",
	}, names)
}
