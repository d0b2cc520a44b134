package workbook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// ErrExists is returned by Save when the target file exists and overwrite
// was not requested.
var ErrExists = errors.New("workbook already exists")

// listValues holds the contents of the Lists sheet.
type listValues map[list][]string

// allLists is the column order of the Lists sheet.
func allLists() []list {
	out := []list{listOrganizations, listPlatforms, listDeploy, listPoolTypes, listPolicyTypes,
		listResourceGroup, listTemplates, listUUIDPools, listServers}
	for _, t := range models.PolicyTypes {
		out = append(out, listPolicies[t])
	}
	return append(out, listMACPools)
}

// staticLists are the choices known without asking the remote system.
func staticLists() listValues {
	v := listValues{
		listPlatforms: {string(models.PlatformFIAttached), string(models.PlatformStandalone)},
		listDeploy:    {"Yes", "No"},
		listPoolTypes: {models.PoolMAC.Label(), models.PoolUUID.Label()},
	}
	for _, t := range models.PolicyTypes {
		v[listPolicyTypes] = append(v[listPolicyTypes], string(t))
	}
	return v
}

type validation struct {
	layout sheetLayout
	header string
	list   list
}

var validations = []validation{
	{poolLayout, colPoolType, listPoolTypes},
	{poolLayout, colOrganization, listOrganizations},
	{policyLayout, colPolicyType, listPolicyTypes},
	{policyLayout, colOrganization, listOrganizations},
	{policyLayout, colMACPoolA, listMACPools},
	{policyLayout, colMACPoolB, listMACPools},
	{policyLayout, colQoSPolicy, listPolicies[models.PolicyQoS]},
	{templateLayout, colOrganization, listOrganizations},
	{templateLayout, colResourceGroup, listResourceGroup},
	{templateLayout, colTargetPlatform, listPlatforms},
	{templateLayout, colBIOSPolicy, listPolicies[models.PolicyBIOS]},
	{templateLayout, colBootPolicy, listPolicies[models.PolicyBoot]},
	{templateLayout, colLANPolicy, listPolicies[models.PolicyVNIC]},
	{templateLayout, colStoragePolicy, listPolicies[models.PolicyStorage]},
	{templateLayout, colUUIDPool, listUUIDPools},
	{profileLayout, colOrganization, listOrganizations},
	{profileLayout, colResourceGroup, listResourceGroup},
	{profileLayout, colTemplateName, listTemplates},
	{profileLayout, colServer, listServers},
	{profileLayout, colDeploy, listDeploy},
}

// New creates a workbook with every sheet, styled header rows and dropdowns
// over the static choices. Remote choices are empty until Populate.
func New() (*excelize.File, error) {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "000000"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"A0D7BE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for i, l := range layouts {
		if i == 0 {
			err = f.SetSheetName("Sheet1", l.Name)
		} else {
			_, err = f.NewSheet(l.Name)
		}
		if err == nil {
			err = writeHeader(f, l, style)
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating sheet %s: %w", l.Name, err)
		}
	}
	if err := writeDocs(f, style); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeDependencies(f, style); err != nil {
		f.Close()
		return nil, err
	}
	lists := staticLists()
	if err := writeLists(f, lists); err != nil {
		f.Close()
		return nil, err
	}
	if err := resetSheet(f, SheetServerMap); err != nil {
		f.Close()
		return nil, err
	}
	if err := setValidations(f, lists); err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Build creates a workbook seeded with objects, one row each.
func Build(objects []models.DesiredObject) (*excelize.File, error) {
	f, err := New()
	if err != nil {
		return nil, err
	}
	if err := Write(f, objects); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeHeader(f *excelize.File, l sheetLayout, style int) error {
	titles := make([]interface{}, len(l.Columns))
	for i, c := range l.Columns {
		titles[i] = c.Title()
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(l.Name, name, name, c.Width); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(l.Name, "A1", &titles); err != nil {
		return err
	}
	last := cellName(len(l.Columns), 1)
	if err := f.SetCellStyle(l.Name, "A1", last, style); err != nil {
		return err
	}
	return f.SetPanes(l.Name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// Write appends each object as a row of its sheet, after the last used row.
func Write(f *excelize.File, objects []models.DesiredObject) error {
	next := make(map[string]int)
	for _, obj := range objects {
		l, ok := layoutFor(obj.Kind)
		if !ok {
			return fmt.Errorf("no sheet for %s objects", obj.Kind)
		}
		row, ok := next[l.Name]
		if !ok {
			rows, err := f.GetRows(l.Name)
			if err != nil {
				return fmt.Errorf("reading sheet %s: %w", l.Name, err)
			}
			row = len(rows) + 1
			if row < 2 {
				row = 2
			}
		}
		values := rowValues(l, obj)
		if err := f.SetSheetRow(l.Name, cellName(1, row), &values); err != nil {
			return fmt.Errorf("writing %s row %d: %w", l.Name, row, err)
		}
		next[l.Name] = row + 1
	}
	return nil
}

func rowValues(l sheetLayout, obj models.DesiredObject) []interface{} {
	v := map[string]interface{}{
		l.NameCol:       obj.Name,
		colOrganization: obj.Organization,
	}
	switch a := obj.Attributes.(type) {
	case *models.PoolSpec:
		v[colPoolType] = a.Type.Label()
		v[colDescription] = a.Description
		v[colStartAddress] = a.StartAddress
		v[colSize] = a.Size
	case *models.PolicySpec:
		v[colPolicyType] = string(a.Type)
		v[colDescription] = a.Description
		v[colMACPoolA] = a.MACPoolA
		v[colMACPoolB] = a.MACPoolB
		v[colQoSPolicy] = a.QoSPolicy
	case *models.TemplateSpec:
		v[colResourceGroup] = a.ResourceGroup
		v[colDescription] = a.Description
		v[colTargetPlatform] = string(a.TargetPlatform)
		v[colBIOSPolicy] = a.BIOSPolicy
		v[colBootPolicy] = a.BootPolicy
		v[colLANPolicy] = a.LANPolicy
		v[colStoragePolicy] = a.StoragePolicy
		v[colUUIDPool] = a.UUIDPool
	case *models.ProfileSpec:
		v[colDescription] = a.Description
		v[colResourceGroup] = a.ResourceGroup
		v[colTemplateName] = a.Template
		v[colServer] = a.Server
		v[colDeploy] = "No"
		if a.Deploy {
			v[colDeploy] = "Yes"
		}
	}
	out := make([]interface{}, len(l.Columns))
	for i, c := range l.Columns {
		if val, ok := v[c.Header]; ok {
			out[i] = val
		} else {
			out[i] = ""
		}
	}
	return out
}

// resetSheet replaces sheet with an empty hidden sheet of the same name.
func resetSheet(f *excelize.File, sheet string) error {
	if idx, err := f.GetSheetIndex(sheet); err != nil {
		return err
	} else if idx >= 0 {
		if err := f.DeleteSheet(sheet); err != nil {
			return fmt.Errorf("clearing sheet %s: %w", sheet, err)
		}
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %s: %w", sheet, err)
	}
	return f.SetSheetVisible(sheet, false)
}

// writeLists rewrites the Lists sheet.
func writeLists(f *excelize.File, values listValues) error {
	if err := resetSheet(f, SheetLists); err != nil {
		return err
	}
	for _, l := range allLists() {
		col := append([]interface{}{l.Header}, stringsToCells(values[l])...)
		if err := f.SetSheetCol(SheetLists, l.Column+"1", &col); err != nil {
			return fmt.Errorf("writing list %s: %w", l.Header, err)
		}
	}
	return nil
}

func stringsToCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// setValidations points every dropdown column at its list.
func setValidations(f *excelize.File, values listValues) error {
	for _, v := range validations {
		if err := setDropList(f, v.layout.Name, v.layout.dataRange(v.header), v.list.ref(len(values[v.list]))); err != nil {
			return fmt.Errorf("adding %s dropdown to %s: %w", v.header, v.layout.Name, err)
		}
	}
	return nil
}

// setDropList replaces the validation on sqref with a list sourced from
// formula (a range or a formula yielding one).
func setDropList(f *excelize.File, sheet, sqref, formula string) error {
	if err := f.DeleteDataValidation(sheet, sqref); err != nil {
		return err
	}
	dv := excelize.NewDataValidation(true)
	dv.Sqref = sqref
	dv.SetSqrefDropList(formula)
	return f.AddDataValidation(sheet, dv)
}

// Save writes f to path, creating parent directories. An existing file is
// only replaced when overwrite is set.
func Save(f *excelize.File, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrExists)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// Open opens an existing workbook.
func Open(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	return f, nil
}
