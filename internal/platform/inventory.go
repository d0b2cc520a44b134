package platform

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
)

// Inventory is a complete snapshot of the remote objects the workbook offers
// as choices.
type Inventory struct {
	Organizations  *models.Listing
	ResourceGroups *models.Listing
	Servers        []models.Server
	Groups         models.GroupMapping
	Pools          map[models.PoolType]*models.Listing
	Policies       map[models.PolicyType]*models.Listing
	Templates      *models.Listing
	Profiles       *models.Listing
}

// OrganizationNames returns the sorted organization names.
func (inv *Inventory) OrganizationNames() []string { return inv.Organizations.Names() }

// PolicyNames returns the sorted names of existing policies of type t.
func (inv *Inventory) PolicyNames(t models.PolicyType) []string { return inv.Policies[t].Names() }

// PoolNames returns the sorted names of existing pools of type t.
func (inv *Inventory) PoolNames(t models.PoolType) []string { return inv.Pools[t].Names() }

// TemplateNames returns the sorted names of existing server profile templates.
func (inv *Inventory) TemplateNames() []string { return inv.Templates.Names() }

// ServerLabels returns the dropdown label of every server, sorted.
func (inv *Inventory) ServerLabels() []string {
	labels := make([]string, 0, len(inv.Servers))
	for _, s := range inv.Servers {
		labels = append(labels, s.Label())
	}
	sort.Strings(labels)
	return labels
}

// LoadInventory fetches every listing. Any failure returns no inventory.
func LoadInventory(ctx context.Context, c *Client) (*Inventory, error) {
	log := logging.FromContext(ctx)
	inv := &Inventory{
		Pools:    make(map[models.PoolType]*models.Listing),
		Policies: make(map[models.PolicyType]*models.Listing),
	}

	var err error
	if inv.Organizations, err = c.listing(ctx, organizationsPath, models.KindOrganization, nil); err != nil {
		return nil, err
	}
	groups, err := c.GetAll(ctx, resourceGroupsPath, url.Values{"$filter": {"not startsWith(Name,'License')"}})
	if err != nil {
		return nil, fmt.Errorf("listing resource groups: %w", err)
	}
	if inv.Servers, err = c.servers(ctx); err != nil {
		return nil, err
	}

	var rgs []models.RemoteObject
	inv.Groups = make(models.GroupMapping)
	for _, g := range groups {
		if strings.HasPrefix(g.Name(), "License") {
			continue
		}
		rgs = append(rgs, g.Remote(models.KindResourceGroup))
		members, err := c.groupMembers(ctx, g, inv.Servers)
		if err != nil {
			return nil, fmt.Errorf("resolving members of resource group %q: %w", g.Name(), err)
		}
		inv.Groups[g.Name()] = members
	}
	inv.ResourceGroups = models.NewListing(rgs)

	for _, k := range objectKinds {
		l, err := c.listing(ctx, k.APIPath, k.Kind, nil)
		if err != nil {
			return nil, err
		}
		switch k.Kind {
		case models.KindPool:
			inv.Pools[models.PoolType(k.Type)] = l
		case models.KindPolicy:
			inv.Policies[models.PolicyType(k.Type)] = l
		case models.KindTemplate:
			inv.Templates = l
		case models.KindProfile:
			inv.Profiles = l
		}
	}

	log.Info("inventory loaded",
		zap.Int("organizations", inv.Organizations.Len()),
		zap.Int("resource_groups", inv.ResourceGroups.Len()),
		zap.Int("servers", len(inv.Servers)),
		zap.Int("templates", inv.Templates.Len()))
	return inv, nil
}

func (c *Client) listing(ctx context.Context, path string, kind models.Kind, params url.Values) (*models.Listing, error) {
	all, err := c.GetAll(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	items := make([]models.RemoteObject, 0, len(all))
	for _, r := range all {
		items = append(items, r.Remote(kind))
	}
	return models.NewListing(items), nil
}

func (c *Client) servers(ctx context.Context) ([]models.Server, error) {
	all, err := c.GetAll(ctx, serversPath, nil)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	servers := make([]models.Server, 0, len(all))
	for _, r := range all {
		servers = append(servers, serverFromResource(r))
	}
	return servers, nil
}

func serverFromResource(r Resource) models.Server {
	return models.Server{
		Moid:       r.Moid(),
		Name:       r.Name(),
		Serial:     r.String("Serial"),
		Model:      r.String("Model"),
		ObjectType: r.String("SourceObjectType"),
		DeviceMoid: r.RefMoid("RegisteredDevice"),
	}
}

// groupMembers evaluates each per-type combined selector of a resource group
// against the device registrations and maps the devices back to servers by
// registration moid, serial or hostname.
func (c *Client) groupMembers(ctx context.Context, group Resource, servers []models.Server) ([]string, error) {
	selectors, _ := group["PerTypeCombinedSelector"].([]interface{})
	seen := make(map[string]bool)
	var labels []string
	for _, s := range selectors {
		sel, _ := s.(map[string]interface{})
		filter, _ := sel["CombinedSelector"].(string)
		if filter == "" {
			continue
		}
		devices, err := c.GetAll(ctx, deviceRegistrationsPath, url.Values{"$filter": {filter}})
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			for _, srv := range servers {
				if seen[srv.Moid] || !deviceMatches(d, srv) {
					continue
				}
				seen[srv.Moid] = true
				labels = append(labels, srv.Label())
			}
		}
	}
	sort.Strings(labels)
	return labels, nil
}

func deviceMatches(d Resource, srv models.Server) bool {
	if srv.DeviceMoid != "" && srv.DeviceMoid == d.Moid() {
		return true
	}
	for _, serial := range d.Strings("Serial") {
		if srv.Serial != "" && serial == srv.Serial {
			return true
		}
	}
	for _, host := range d.Strings("DeviceHostname") {
		if srv.Name != "" && strings.EqualFold(host, srv.Name) {
			return true
		}
	}
	return false
}
