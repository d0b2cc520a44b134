package workbook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/xuri/excelize/v2"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// Prefix of the defined names the populator owns.
const listPrefix = "RG_"

// indexName is the defined name of the group -> list name table.
const indexName = listPrefix + "Index"

// groupHash hashes a resource group name into its list identifier.
var groupHash = xxhash.Sum64String

// Choices are the remote values offered by the workbook dropdowns.
type Choices struct {
	Organizations []string
	Templates     []string
	UUIDPools     []string
	MACPools      []string
	Policies      map[models.PolicyType][]string
	Servers       []string
	Groups        models.GroupMapping
}

// Populate rewrites the dropdown choices of f. Templates, policies and pools
// defined in the workbook itself are offered alongside the remote
// ones. Previous choices, the server map and its defined names are replaced.
func Populate(f *excelize.File, c Choices) error {
	objects, _, err := Read(f)
	if err != nil {
		return err
	}

	values := staticLists()
	values[listOrganizations] = dedupe(c.Organizations)
	values[listResourceGroup] = c.Groups.Groups()
	values[listServers] = dedupe(c.Servers)
	templates := append([]string(nil), c.Templates...)
	pools := append([]string(nil), c.UUIDPools...)
	macPools := append([]string(nil), c.MACPools...)
	policies := make(map[models.PolicyType][]string)
	for t, names := range c.Policies {
		policies[t] = append(policies[t], names...)
	}
	for _, obj := range objects {
		switch a := obj.Attributes.(type) {
		case *models.TemplateSpec:
			templates = append(templates, obj.Name)
		case *models.PoolSpec:
			switch a.Type {
			case models.PoolUUID:
				pools = append(pools, obj.Name)
			case models.PoolMAC:
				macPools = append(macPools, obj.Name)
			}
		case *models.PolicySpec:
			policies[a.Type] = append(policies[a.Type], obj.Name)
		}
	}
	values[listTemplates] = dedupe(templates)
	values[listUUIDPools] = dedupe(pools)
	values[listMACPools] = dedupe(macPools)
	for _, t := range models.PolicyTypes {
		values[listPolicies[t]] = dedupe(policies[t])
	}

	if err := writeLists(f, values); err != nil {
		return err
	}
	if err := setValidations(f, values); err != nil {
		return err
	}
	if err := writeServerMap(f, c.Groups); err != nil {
		return err
	}
	if len(c.Groups) == 0 {
		return nil
	}
	formula := fmt.Sprintf("INDIRECT(VLOOKUP($%s2,%s,2,FALSE))", profileLayout.colName(colResourceGroup), indexName)
	if err := setDropList(f, SheetProfiles, profileLayout.dataRange(colServer), formula); err != nil {
		return fmt.Errorf("adding server dropdown: %w", err)
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// writeServerMap rebuilds the ServerMap sheet: the index table in columns A
// and B, then one column of server labels per group, each named by its list
// identifier.
func writeServerMap(f *excelize.File, groups models.GroupMapping) error {
	for _, dn := range f.GetDefinedName() {
		if !strings.HasPrefix(dn.Name, listPrefix) {
			continue
		}
		if err := f.DeleteDefinedName(&excelize.DefinedName{Name: dn.Name, Scope: dn.Scope}); err != nil {
			return fmt.Errorf("removing defined name %s: %w", dn.Name, err)
		}
	}
	if err := resetSheet(f, SheetServerMap); err != nil {
		return err
	}

	header := []interface{}{"Resource Group", "List Name"}
	if err := f.SetSheetRow(SheetServerMap, "A1", &header); err != nil {
		return err
	}
	sorted := groups.Groups()
	names := ListNames(sorted)
	for i, g := range sorted {
		row := []interface{}{g, names[g]}
		if err := f.SetSheetRow(SheetServerMap, cellName(1, i+2), &row); err != nil {
			return fmt.Errorf("writing %s index: %w", SheetServerMap, err)
		}
		col := i + 3
		members := append([]interface{}{g}, stringsToCells(groups[g])...)
		if err := f.SetSheetCol(SheetServerMap, cellName(col, 1), &members); err != nil {
			return fmt.Errorf("writing servers of %q: %w", g, err)
		}
		if err := f.SetDefinedName(&excelize.DefinedName{
			Name:     names[g],
			RefersTo: columnRef(SheetServerMap, col, len(groups[g])),
		}); err != nil {
			return fmt.Errorf("defining %s: %w", names[g], err)
		}
	}

	last := len(sorted) + 1
	if last < 2 {
		last = 2
	}
	return f.SetDefinedName(&excelize.DefinedName{
		Name:     indexName,
		RefersTo: fmt.Sprintf("%s!$A$2:$B$%d", SheetServerMap, last),
	})
}

// columnRef is the absolute range of n cells from row 2 of column col. An
// empty range refers to the single blank cell in row 2.
func columnRef(sheet string, col, n int) string {
	name, _ := excelize.ColumnNumberToName(col)
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("%s!$%s$2:$%s$%d", sheet, name, name, n+1)
}

// ListNames assigns each resource group its list identifier. Groups are
// processed in sorted order and a counter is appended on collision, so the
// result depends only on the set of groups.
func ListNames(groups []string) map[string]string {
	sorted := append([]string(nil), groups...)
	sort.Strings(sorted)
	names := make(map[string]string, len(sorted))
	used := map[string]bool{strings.ToLower(indexName): true}
	for _, g := range sorted {
		if _, ok := names[g]; ok {
			continue
		}
		base := listName(g)
		name := base
		for i := 2; used[strings.ToLower(name)]; i++ {
			name = fmt.Sprintf("%s_%d", base, i)
		}
		used[strings.ToLower(name)] = true
		names[g] = name
	}
	return names
}

// listName is RG_<sanitized name, at most 24 characters>_<8 hex digits>.
func listName(group string) string {
	var b strings.Builder
	n := 0
	for _, r := range group {
		if n == 24 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		n++
	}
	return fmt.Sprintf("%s%s_%08x", listPrefix, b.String(), uint32(groupHash(group)))
}

// ServerOptions returns the servers the Profiles server dropdown offers for
// a row whose resource group is group, resolving the same index table and
// defined name the dropdown formula uses.
func ServerOptions(f *excelize.File, group string) ([]string, error) {
	index, err := definedRange(f, indexName)
	if err != nil {
		return nil, err
	}
	var name string
	for row := index.top; row <= index.bottom; row++ {
		g, err := f.GetCellValue(index.sheet, cellName(index.left, row))
		if err != nil {
			return nil, err
		}
		if g == group {
			if name, err = f.GetCellValue(index.sheet, cellName(index.left+1, row)); err != nil {
				return nil, err
			}
			break
		}
	}
	if name == "" {
		return nil, fmt.Errorf("resource group %q is not in %s", group, SheetServerMap)
	}

	r, err := definedRange(f, name)
	if err != nil {
		return nil, err
	}
	var out []string
	for row := r.top; row <= r.bottom; row++ {
		v, err := f.GetCellValue(r.sheet, cellName(r.left, row))
		if err != nil {
			return nil, err
		}
		if v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

type cellRange struct {
	sheet             string
	left, top, bottom int
}

// definedRange resolves a workbook-scoped defined name of the form
// Sheet!$A$1:$B$2.
func definedRange(f *excelize.File, name string) (cellRange, error) {
	for _, dn := range f.GetDefinedName() {
		if dn.Name != name {
			continue
		}
		ref := strings.TrimPrefix(dn.RefersTo, "=")
		sheet, area, ok := strings.Cut(ref, "!")
		if !ok {
			return cellRange{}, fmt.Errorf("defined name %s: unsupported reference %q", name, dn.RefersTo)
		}
		from, to, _ := strings.Cut(strings.ReplaceAll(area, "$", ""), ":")
		if to == "" {
			to = from
		}
		left, top, err := excelize.CellNameToCoordinates(from)
		if err != nil {
			return cellRange{}, fmt.Errorf("defined name %s: %w", name, err)
		}
		_, bottom, err := excelize.CellNameToCoordinates(to)
		if err != nil {
			return cellRange{}, fmt.Errorf("defined name %s: %w", name, err)
		}
		return cellRange{sheet: strings.Trim(sheet, "'"), left: left, top: top, bottom: bottom}, nil
	}
	return cellRange{}, fmt.Errorf("defined name %s not found", name)
}
