// Package workbook builds, populates and reads the Excel workbook that
// describes the desired pools, policies, templates and profiles.
package workbook

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// Sheet names.
const (
	SheetPools        = "Pools"
	SheetPolicies     = "Policies"
	SheetTemplate     = "Template"
	SheetProfiles     = "Profiles"
	SheetDocs         = "Documentation"
	SheetDependencies = "Dependencies"
	SheetServerMap    = "ServerMap"
	SheetLists        = "Lists"
)

// lastRow is the last data row covered by dropdown validations.
const lastRow = 1000

// Header texts shared by the layouts and the reader.
const (
	colPoolType       = "Pool Type"
	colPoolName       = "Pool Name"
	colPolicyType     = "Policy Type"
	colPolicyName     = "Policy Name"
	colTemplateName   = "Template Name"
	colProfileName    = "Profile Name"
	colDescription    = "Description"
	colOrganization   = "Organization"
	colResourceGroup  = "Resource Group"
	colStartAddress   = "Start Address"
	colSize           = "Size"
	colTargetPlatform = "Target Platform"
	colBIOSPolicy     = "BIOS Policy"
	colBootPolicy     = "Boot Policy"
	colLANPolicy      = "LAN Connectivity Policy"
	colStoragePolicy  = "Storage Policy"
	colUUIDPool       = "UUID Pool"
	colMACPoolA       = "MAC Pool A"
	colMACPoolB       = "MAC Pool B"
	colQoSPolicy      = "QoS Policy"
	colServer         = "Server"
	colDeploy         = "Deploy"
)

type column struct {
	Header   string
	Required bool
	Width    float64
}

// Title is the header cell text; required columns carry an asterisk.
func (c column) Title() string {
	if c.Required {
		return c.Header + "*"
	}
	return c.Header
}

type sheetLayout struct {
	Name    string
	Kind    models.Kind
	NameCol string // header of the object name column
	Columns []column
}

// col returns the 1-based column number of header, or 0.
func (l sheetLayout) col(header string) int {
	for i, c := range l.Columns {
		if c.Header == header {
			return i + 1
		}
	}
	return 0
}

// colName returns the column letter of header.
func (l sheetLayout) colName(header string) string {
	name, err := excelize.ColumnNumberToName(l.col(header))
	if err != nil {
		panic(fmt.Sprintf("workbook: no column %q in sheet %s", header, l.Name))
	}
	return name
}

// dataRange is the validation range of a column, e.g. "D2:D1000".
func (l sheetLayout) dataRange(header string) string {
	c := l.colName(header)
	return fmt.Sprintf("%s2:%s%d", c, c, lastRow)
}

var (
	poolLayout = sheetLayout{Name: SheetPools, Kind: models.KindPool, NameCol: colPoolName, Columns: []column{
		{colPoolType, true, 14},
		{colPoolName, true, 26},
		{colDescription, false, 36},
		{colStartAddress, true, 22},
		{colSize, true, 8},
		{colOrganization, true, 18},
	}}

	policyLayout = sheetLayout{Name: SheetPolicies, Kind: models.KindPolicy, NameCol: colPolicyName, Columns: []column{
		{colPolicyType, true, 14},
		{colPolicyName, true, 26},
		{colDescription, false, 36},
		{colOrganization, true, 18},
		{colMACPoolA, false, 22},
		{colMACPoolB, false, 22},
		{colQoSPolicy, false, 22},
	}}

	templateLayout = sheetLayout{Name: SheetTemplate, Kind: models.KindTemplate, NameCol: colTemplateName, Columns: []column{
		{colTemplateName, true, 26},
		{colOrganization, true, 18},
		{colResourceGroup, false, 22},
		{colDescription, false, 36},
		{colTargetPlatform, true, 16},
		{colBIOSPolicy, false, 22},
		{colBootPolicy, false, 22},
		{colLANPolicy, false, 26},
		{colStoragePolicy, false, 22},
		{colUUIDPool, false, 22},
	}}

	profileLayout = sheetLayout{Name: SheetProfiles, Kind: models.KindProfile, NameCol: colProfileName, Columns: []column{
		{colProfileName, true, 22},
		{colDescription, false, 30},
		{colOrganization, true, 18},
		{colResourceGroup, false, 22},
		{colTemplateName, true, 26},
		{colServer, false, 32},
		{colDeploy, true, 10},
	}}
)

// layouts in reading order.
var layouts = []sheetLayout{poolLayout, policyLayout, templateLayout, profileLayout}

func layoutFor(kind models.Kind) (sheetLayout, bool) {
	for _, l := range layouts {
		if l.Kind == kind {
			return l, true
		}
	}
	return sheetLayout{}, false
}

// Lists sheet columns. Static lists are written by the builder, remote ones
// by the populator.
type list struct {
	Column string
	Header string
}

var (
	listOrganizations = list{"A", "Organizations"}
	listPlatforms     = list{"B", "Target Platforms"}
	listDeploy        = list{"C", "Deploy"}
	listPoolTypes     = list{"D", "Pool Types"}
	listPolicyTypes   = list{"E", "Policy Types"}
	listResourceGroup = list{"F", "Resource Groups"}
	listTemplates     = list{"G", "Templates"}
	listUUIDPools     = list{"H", "UUID Pools"}
	listServers       = list{"I", "Servers"}
)

// listPolicies holds one Lists column per policy type, after the fixed lists.
var listPolicies = map[models.PolicyType]list{
	models.PolicyBIOS:    {"J", "BIOS Policies"},
	models.PolicyBoot:    {"K", "Boot Policies"},
	models.PolicyVNIC:    {"L", "LAN Connectivity Policies"},
	models.PolicyQoS:     {"M", "QoS Policies"},
	models.PolicyStorage: {"N", "Storage Policies"},
}

var listMACPools = list{"O", "MAC Pools"}

// ref is the absolute range of n values below the header. An empty list
// refers to its first (blank) cell.
func (l list) ref(n int) string {
	if n < 1 {
		n = 1
	}
	return fmt.Sprintf("%s!$%s$2:$%s$%d", SheetLists, l.Column, l.Column, n+1)
}

// normalizeHeader lower-cases a header and drops spaces and required markers.
func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "*", "")
	return strings.ReplaceAll(s, " ", "")
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
