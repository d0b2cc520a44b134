package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/rflorenc/intersight-workbench/internal/models"
	"github.com/rflorenc/intersight-workbench/internal/platform"
	"github.com/rflorenc/intersight-workbench/internal/workflow"
)

// render prints what an action produced: the inventory for refresh actions,
// the per-object report for pushes.
func render(w io.Writer, action workflow.Action, res *workflow.Result) {
	switch action {
	case workflow.ActionGetInfo:
		if res.Inventory != nil {
			renderInventory(w, res.Inventory)
		}
	case workflow.ActionUpdateServers:
		if res.Inventory != nil {
			renderGroups(w, res.Inventory.Groups)
		}
	}
	if action.Kinds() != nil {
		renderReport(w, res.Report)
	}
	if res.Written != "" {
		fmt.Fprintf(w, "Workbook written to %s\n", res.Written)
	}
}

func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	return table
}

func renderReport(w io.Writer, rep *models.Report) {
	if len(rep.Results) > 0 {
		table := newTable(w, "Kind", "Type", "Name", "Organization", "Outcome", "Moid", "Detail")
		for _, res := range rep.Results {
			detail := res.Error
			if detail == "" {
				detail = res.Note
			}
			table.Append([]string{
				string(res.Key.Kind),
				res.Key.Type,
				res.Key.Name,
				res.Key.Organization,
				string(res.Outcome),
				res.Moid,
				detail,
			})
		}
		table.Render()
	}

	if len(rep.Validation) > 0 {
		fmt.Fprintln(w, "Rejected rows:")
		table := newTable(w, "Sheet", "Row", "Field", "Message")
		for _, v := range rep.Validation {
			table.Append([]string{v.Sheet, strconv.Itoa(v.Row), v.Field, v.Msg})
		}
		table.Render()
	}

	summary := []string{
		fmt.Sprintf("%s: %d", models.OutcomeCreated, rep.Count(models.OutcomeCreated)),
		fmt.Sprintf("%s: %d", models.OutcomeExists, rep.Count(models.OutcomeExists)),
	}
	if rep.DryRun {
		summary = append(summary, fmt.Sprintf("%s: %d", models.OutcomePlanned, rep.Count(models.OutcomePlanned)))
	}
	summary = append(summary,
		fmt.Sprintf("%s: %d", models.OutcomeFailed, rep.Count(models.OutcomeFailed)),
		fmt.Sprintf("rejected rows: %d", len(rep.Validation)),
	)
	fmt.Fprintln(w, strings.Join(summary, ", "))
	if rep.Aborted != "" {
		fmt.Fprintf(w, "Aborted: %s\n", rep.Aborted)
	}
}

func renderInventory(w io.Writer, inv *platform.Inventory) {
	fmt.Fprintf(w, "Organizations: %s\n", strings.Join(inv.OrganizationNames(), ", "))

	groupsOf := make(map[string][]string)
	for _, g := range inv.Groups.Groups() {
		for _, label := range inv.Groups[g] {
			groupsOf[label] = append(groupsOf[label], g)
		}
	}
	servers := append([]models.Server(nil), inv.Servers...)
	sort.Slice(servers, func(i, j int) bool { return servers[i].Label() < servers[j].Label() })

	table := newTable(w, "Server", "Serial", "Model", "Resource Groups")
	for _, s := range servers {
		table.Append([]string{s.Name, s.Serial, s.Model, strings.Join(groupsOf[s.Label()], ", ")})
	}
	table.Render()

	table = newTable(w, "Object", "Count")
	for _, t := range []models.PoolType{models.PoolMAC, models.PoolUUID} {
		table.Append([]string{string(t) + " pools", strconv.Itoa(inv.Pools[t].Len())})
	}
	for _, t := range models.PolicyTypes {
		table.Append([]string{string(t) + " policies", strconv.Itoa(inv.Policies[t].Len())})
	}
	table.Append([]string{"templates", strconv.Itoa(inv.Templates.Len())})
	table.Append([]string{"profiles", strconv.Itoa(inv.Profiles.Len())})
	table.Render()
}

func renderGroups(w io.Writer, groups models.GroupMapping) {
	table := newTable(w, "Resource Group", "Servers")
	for _, g := range groups.Groups() {
		servers := groups[g]
		if len(servers) == 0 {
			table.Append([]string{g, "(none)"})
			continue
		}
		table.Append([]string{g, strings.Join(servers, ", ")})
	}
	table.Render()
}
