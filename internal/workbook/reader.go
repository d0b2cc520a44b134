package workbook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// Read parses the Pools, Policies, Template and Profiles sheets, in that
// order, into desired objects. Rows that fail validation are returned as
// validation errors and left out; a missing sheet or required header fails
// the whole read.
func Read(f *excelize.File) ([]models.DesiredObject, []*models.ValidationError, error) {
	var (
		objects []models.DesiredObject
		invalid []*models.ValidationError
	)
	for _, l := range layouts {
		objs, verrs, err := readSheet(f, l)
		if err != nil {
			return nil, nil, err
		}
		objects = append(objects, objs...)
		invalid = append(invalid, verrs...)
	}
	return objects, invalid, nil
}

// row gives access to the cells of one sheet row by header.
type row struct {
	sheet string
	num   int
	cells []string
	index map[string]int
}

func (r row) get(header string) string {
	i, ok := r.index[normalizeHeader(header)]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r row) invalid(field, format string, args ...interface{}) *models.ValidationError {
	return &models.ValidationError{Sheet: r.sheet, Row: r.num, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func readSheet(f *excelize.File, l sheetLayout) ([]models.DesiredObject, []*models.ValidationError, error) {
	rows, err := f.GetRows(l.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("reading sheet %s: %w", l.Name, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("sheet %s has no header row", l.Name)
	}
	index := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		if key := normalizeHeader(h); key != "" {
			if _, dup := index[key]; !dup {
				index[key] = i
			}
		}
	}
	for _, c := range l.Columns {
		if _, ok := index[normalizeHeader(c.Header)]; c.Required && !ok {
			return nil, nil, fmt.Errorf("sheet %s: missing column %q", l.Name, c.Header)
		}
	}

	var (
		objects []models.DesiredObject
		invalid []*models.ValidationError
	)
	seen := make(map[models.Key]int)
	for i, cells := range rows[1:] {
		r := row{sheet: l.Name, num: i + 2, cells: cells, index: index}
		name, org := r.get(l.NameCol), r.get(colOrganization)
		if name == "" && org == "" {
			continue
		}
		if name == "" {
			invalid = append(invalid, r.invalid(l.NameCol, "required"))
			continue
		}
		if org == "" {
			invalid = append(invalid, r.invalid(colOrganization, "required"))
			continue
		}

		attrs, verr := parseAttributes(l.Kind, r)
		if verr != nil {
			invalid = append(invalid, verr)
			continue
		}
		obj := models.NewDesiredObject(name, org, attrs)
		if prev, dup := seen[obj.Key()]; dup {
			invalid = append(invalid, r.invalid(l.NameCol, "duplicate of row %d", prev))
			continue
		}
		seen[obj.Key()] = r.num
		objects = append(objects, obj)
	}
	return objects, invalid, nil
}

func parseAttributes(kind models.Kind, r row) (models.Attributes, *models.ValidationError) {
	switch kind {
	case models.KindPool:
		return parsePool(r)
	case models.KindPolicy:
		return parsePolicy(r)
	case models.KindTemplate:
		p, err := models.ParseTargetPlatform(r.get(colTargetPlatform))
		if err != nil {
			return nil, r.invalid(colTargetPlatform, "%v", err)
		}
		return &models.TemplateSpec{
			Description:    r.get(colDescription),
			ResourceGroup:  r.get(colResourceGroup),
			TargetPlatform: p,
			BIOSPolicy:     r.get(colBIOSPolicy),
			BootPolicy:     r.get(colBootPolicy),
			LANPolicy:      r.get(colLANPolicy),
			StoragePolicy:  r.get(colStoragePolicy),
			UUIDPool:       r.get(colUUIDPool),
		}, nil
	case models.KindProfile:
		tmpl := r.get(colTemplateName)
		if tmpl == "" {
			return nil, r.invalid(colTemplateName, "required")
		}
		deploy, err := parseYesNo(r.get(colDeploy))
		if err != nil {
			return nil, r.invalid(colDeploy, "%v", err)
		}
		return &models.ProfileSpec{
			Description:   r.get(colDescription),
			ResourceGroup: r.get(colResourceGroup),
			Template:      tmpl,
			Server:        r.get(colServer),
			Deploy:        deploy,
		}, nil
	}
	return nil, r.invalid("", "unsupported kind %s", kind)
}

func parsePool(r row) (models.Attributes, *models.ValidationError) {
	t, err := models.ParsePoolType(r.get(colPoolType))
	if err != nil {
		return nil, r.invalid(colPoolType, "%v", err)
	}
	start := r.get(colStartAddress)
	if start == "" {
		return nil, r.invalid(colStartAddress, "required")
	}
	if start, err = models.NormalizeStartAddress(t, start); err != nil {
		return nil, r.invalid(colStartAddress, "%v", err)
	}
	size, err := parseSize(r.get(colSize))
	if err != nil {
		return nil, r.invalid(colSize, "%v", err)
	}
	return &models.PoolSpec{Type: t, Description: r.get(colDescription), StartAddress: start, Size: size}, nil
}

// parsePolicy reads a policy row. The vNIC columns only apply to LAN
// connectivity policies.
func parsePolicy(r row) (models.Attributes, *models.ValidationError) {
	t, err := models.ParsePolicyType(r.get(colPolicyType))
	if err != nil {
		return nil, r.invalid(colPolicyType, "%v", err)
	}
	spec := &models.PolicySpec{
		Type:        t,
		Description: r.get(colDescription),
		MACPoolA:    r.get(colMACPoolA),
		MACPoolB:    r.get(colMACPoolB),
		QoSPolicy:   r.get(colQoSPolicy),
	}
	if t != models.PolicyVNIC {
		for _, c := range []string{colMACPoolA, colMACPoolB, colQoSPolicy} {
			if r.get(c) != "" {
				return nil, r.invalid(c, "only applies to %s policies", models.PolicyVNIC)
			}
		}
	}
	return spec, nil
}

// parseSize accepts a positive whole number, also when Excel stored it as
// a float ("256.0").
func parseSize(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("required")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("must be positive, got %d", n)
		}
		return n, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != float64(int(v)) {
		return 0, fmt.Errorf("not a whole number: %q", s)
	}
	if v <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return int(v), nil
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "no", "n", "false":
		return false, nil
	case "yes", "y", "true":
		return true, nil
	}
	return false, fmt.Errorf("expected Yes or No, got %q", s)
}
