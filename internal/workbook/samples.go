package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// Samples returns the rows a fresh workbook is seeded with: an AI POD
// foundation in the default organization.
func Samples() []models.DesiredObject {
	const org = "default"
	objs := []models.DesiredObject{
		models.NewDesiredObject("Ai_POD-MAC-A", org, &models.PoolSpec{Type: models.PoolMAC,
			Description: "MAC Pool for AI POD Fabric A", StartAddress: "00:25:B5:A0:00:00", Size: 256}),
		models.NewDesiredObject("Ai_POD-MAC-B", org, &models.PoolSpec{Type: models.PoolMAC,
			Description: "MAC Pool for AI POD Fabric B", StartAddress: "00:25:B5:B0:00:00", Size: 256}),
		models.NewDesiredObject("Ai_POD-UUID-Pool", org, &models.PoolSpec{Type: models.PoolUUID,
			Description: "UUID Pool for AI POD Servers", StartAddress: "0000-000000000001", Size: 100}),

		models.NewDesiredObject("Ai_POD-vNIC-A", org, &models.PolicySpec{Type: models.PolicyVNIC, Description: "vNIC Policy for AI POD Fabric A",
			MACPoolA: "Ai_POD-MAC-A", QoSPolicy: "Ai_POD-QoS"}),
		models.NewDesiredObject("Ai_POD-vNIC-B", org, &models.PolicySpec{Type: models.PolicyVNIC, Description: "vNIC Policy for AI POD Fabric B",
			MACPoolB: "Ai_POD-MAC-B", QoSPolicy: "Ai_POD-QoS"}),
		models.NewDesiredObject("Ai_POD-BIOS", org, &models.PolicySpec{Type: models.PolicyBIOS, Description: "BIOS Policy for AI POD"}),
		models.NewDesiredObject("Ai_POD-BOOT", org, &models.PolicySpec{Type: models.PolicyBoot, Description: "Boot Policy for AI POD"}),
		models.NewDesiredObject("Ai_POD-QoS", org, &models.PolicySpec{Type: models.PolicyQoS, Description: "QoS Policy for AI POD"}),
		models.NewDesiredObject("Ai_POD-Storage", org, &models.PolicySpec{Type: models.PolicyStorage, Description: "Storage Policy for AI POD"}),

		models.NewDesiredObject("Ai_POD_Template", org, &models.TemplateSpec{
			Description:    "Server template for AI POD workloads",
			ResourceGroup:  "AI POD Servers",
			TargetPlatform: models.PlatformFIAttached,
			BIOSPolicy:     "Ai_POD-BIOS",
			BootPolicy:     "Ai_POD-BOOT",
			LANPolicy:      "Ai_POD-vNIC-A",
			StoragePolicy:  "Ai_POD-Storage",
			UUIDPool:       "Ai_POD-UUID-Pool",
		}),
	}
	for i := 1; i <= 8; i++ {
		objs = append(objs, models.NewDesiredObject(fmt.Sprintf("AI-Server-%02d", i), org, &models.ProfileSpec{
			Description:   fmt.Sprintf("Production AI POD Host %d", i),
			ResourceGroup: "AI POD Servers",
			Template:      "Ai_POD_Template",
		}))
	}
	return objs
}

var docLines = [][]string{
	{"Sheet", "Purpose"},
	{SheetPools, "MAC and UUID pools. Start Address is a MAC (00:25:B5:00:00:00) or a UUID suffix (0000-000000000001)."},
	{SheetPolicies, "BIOS, Boot, vNIC (LAN connectivity), QoS and Storage policies, created with the standard settings of their type. A vNIC policy gets eth0 on fabric A and eth1 on fabric B for each MAC Pool column set, bound to its QoS Policy."},
	{SheetTemplate, "Server profile templates and the policies and UUID pool they use."},
	{SheetProfiles, "Server profiles derived from a template. The Server dropdown lists the servers of the row's Resource Group. Deploy=Yes deploys newly created profiles."},
	{"", ""},
	{"Rules", ""},
	{"Required", "Columns marked * are required. Rows with neither name nor organization are ignored."},
	{"Idempotent", "Objects that already exist are left untouched; pushing the same workbook twice creates nothing the second time."},
	{"Order", "Pools, then policies, then templates, then profiles. Objects may reference rows of the same workbook."},
	{"Dropdowns", "Run the update-servers or get-info action to refresh organizations, policies, templates and servers."},
	{SheetDependencies, "Which objects each sheet refers to, and through which column."},
}

// dependencySpecimens fill every reference field with its column header, so
// the references they report name the column each dependency is read from.
var dependencySpecimens = map[models.Kind]models.Attributes{
	models.KindPool: &models.PoolSpec{},
	models.KindPolicy: &models.PolicySpec{Type: models.PolicyVNIC,
		MACPoolA: colMACPoolA, MACPoolB: colMACPoolB, QoSPolicy: colQoSPolicy},
	models.KindTemplate: &models.TemplateSpec{BIOSPolicy: colBIOSPolicy, BootPolicy: colBootPolicy,
		LANPolicy: colLANPolicy, StoragePolicy: colStoragePolicy, UUIDPool: colUUIDPool},
	models.KindProfile: &models.ProfileSpec{Template: colTemplateName, Server: colServer},
}

var kindLabels = map[models.Kind]string{
	models.KindPool:     "Pool",
	models.KindPolicy:   "Policy",
	models.KindTemplate: "Template",
	models.KindServer:   "Server",
}

// dependencyRows lists, in push order, the organization and every reference
// column of each sheet.
func dependencyRows() [][]interface{} {
	rows := [][]interface{}{{"Component", "Depends On", "Column", "Requirement"}}
	for _, kind := range models.SyncOrder {
		l, ok := layoutFor(kind)
		if !ok {
			continue
		}
		rows = append(rows, []interface{}{l.Name, "Organization", colOrganization, "Required"})
		component := l.Name
		if p, ok := dependencySpecimens[kind].(*models.PolicySpec); ok {
			component = fmt.Sprintf("%s (%s)", l.Name, p.Type)
		}
		for _, ref := range dependencySpecimens[kind].References() {
			dependsOn := kindLabels[ref.Kind]
			if ref.Type != "" {
				dependsOn = ref.Type + " " + dependsOn
			}
			requirement := "Optional"
			if c := l.col(ref.Name); c > 0 && l.Columns[c-1].Required {
				requirement = "Required"
			}
			rows = append(rows, []interface{}{component, dependsOn, ref.Name, requirement})
		}
	}
	return rows
}

func writeDependencies(f *excelize.File, style int) error {
	if _, err := f.NewSheet(SheetDependencies); err != nil {
		return fmt.Errorf("creating sheet %s: %w", SheetDependencies, err)
	}
	for i, row := range dependencyRows() {
		if err := f.SetSheetRow(SheetDependencies, cellName(1, i+1), &row); err != nil {
			return fmt.Errorf("writing %s: %w", SheetDependencies, err)
		}
	}
	if err := f.SetColWidth(SheetDependencies, "A", "D", 26); err != nil {
		return err
	}
	return f.SetCellStyle(SheetDependencies, "A1", "D1", style)
}

func writeDocs(f *excelize.File, style int) error {
	if _, err := f.NewSheet(SheetDocs); err != nil {
		return fmt.Errorf("creating sheet %s: %w", SheetDocs, err)
	}
	for i, line := range docLines {
		row := []interface{}{line[0], line[1]}
		if err := f.SetSheetRow(SheetDocs, cellName(1, i+1), &row); err != nil {
			return fmt.Errorf("writing %s: %w", SheetDocs, err)
		}
	}
	if err := f.SetColWidth(SheetDocs, "A", "A", 16); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetDocs, "B", "B", 110); err != nil {
		return err
	}
	return f.SetCellStyle(SheetDocs, "A1", "B1", style)
}
