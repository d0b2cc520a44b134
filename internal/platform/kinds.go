package platform

import (
	"fmt"
	"time"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// Resource is a generic Intersight managed object.
type Resource map[string]interface{}

// Moid returns the object's managed object ID.
func (r Resource) Moid() string { return r.String("Moid") }

// Name returns the object's Name.
func (r Resource) Name() string { return r.String("Name") }

// String returns a string field, or "" when absent or not a string.
func (r Resource) String(field string) string {
	if r == nil {
		return ""
	}
	s, _ := r[field].(string)
	return s
}

// RefMoid returns the Moid of a relationship field such as Organization.
func (r Resource) RefMoid(field string) string {
	if r == nil {
		return ""
	}
	ref, _ := r[field].(map[string]interface{})
	s, _ := ref["Moid"].(string)
	return s
}

// Strings returns a field that may be a string or a list of strings.
func (r Resource) Strings(field string) []string {
	switch v := r[field].(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Remote converts the resource to a RemoteObject of the given kind.
func (r Resource) Remote(kind models.Kind) models.RemoteObject {
	mod, _ := time.Parse(time.RFC3339, r.String("ModTime"))
	return models.RemoteObject{
		Kind:         kind,
		Type:         r.String("ObjectType"),
		Name:         r.Name(),
		Organization: r.RefMoid("Organization"),
		Moid:         r.Moid(),
		ModTime:      mod,
	}
}

// objectKind maps a desired kind (and subtype) onto its API endpoint.
type objectKind struct {
	Kind    models.Kind
	Type    string
	Label   string
	APIPath string
	ClassID string
}

// API paths of remote-only listings.
const (
	organizationsPath       = "organization/Organizations"
	resourceGroupsPath      = "resource/Groups"
	serversPath             = "compute/PhysicalSummaries"
	deviceRegistrationsPath = "asset/DeviceRegistrations"
)

// API paths of the objects a LAN connectivity policy's vNICs are built from.
const (
	ethAdapterPoliciesPath   = "vnic/EthAdapterPolicies"
	networkGroupPoliciesPath = "fabric/EthNetworkGroupPolicies"
	ethIfsPath               = "vnic/EthIfs"
)

// objectKinds is the registry of creatable object types, in sync order.
var objectKinds = []objectKind{
	{Kind: models.KindPool, Type: string(models.PoolMAC), Label: "MAC Pools",
		APIPath: "macpool/Pools", ClassID: "macpool.Pool"},
	{Kind: models.KindPool, Type: string(models.PoolUUID), Label: "UUID Pools",
		APIPath: "uuidpool/Pools", ClassID: "uuidpool.Pool"},
	{Kind: models.KindPolicy, Type: string(models.PolicyBIOS), Label: "BIOS Policies",
		APIPath: "bios/Policies", ClassID: "bios.Policy"},
	{Kind: models.KindPolicy, Type: string(models.PolicyBoot), Label: "Boot Policies",
		APIPath: "boot/PrecisionPolicies", ClassID: "boot.PrecisionPolicy"},
	{Kind: models.KindPolicy, Type: string(models.PolicyVNIC), Label: "LAN Connectivity Policies",
		APIPath: "vnic/LanConnectivityPolicies", ClassID: "vnic.LanConnectivityPolicy"},
	{Kind: models.KindPolicy, Type: string(models.PolicyQoS), Label: "Ethernet QoS Policies",
		APIPath: "vnic/EthQosPolicies", ClassID: "vnic.EthQosPolicy"},
	{Kind: models.KindPolicy, Type: string(models.PolicyStorage), Label: "Storage Policies",
		APIPath: "storage/StoragePolicies", ClassID: "storage.StoragePolicy"},
	{Kind: models.KindTemplate, Label: "Server Profile Templates",
		APIPath: "server/ProfileTemplates", ClassID: "server.ProfileTemplate"},
	{Kind: models.KindProfile, Label: "Server Profiles",
		APIPath: "server/Profiles", ClassID: "server.Profile"},
}

func lookupKind(kind models.Kind, typ string) (objectKind, error) {
	for _, k := range objectKinds {
		if k.Kind == kind && k.Type == typ {
			return k, nil
		}
	}
	return objectKind{}, fmt.Errorf("no API endpoint for %s %s", typ, kind)
}
