package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/rflorenc/intersight-workbench/internal/logging"
	"github.com/rflorenc/intersight-workbench/internal/models"
)

// VLANs carried by the network group of every workbench vNIC.
const (
	nativeVLAN   = 1
	allowedVLANs = "2-100"
)

// fabricVNIC is the vNIC placed on one fabric interconnect.
type fabricVNIC struct {
	Name    string // eth0, eth1
	Order   int
	Fabric  string // A, B
	MACPool string
}

func fabricVNICs(spec *models.PolicySpec) []fabricVNIC {
	var out []fabricVNIC
	if spec.MACPoolA != "" {
		out = append(out, fabricVNIC{Name: "eth0", Order: 0, Fabric: "A", MACPool: spec.MACPoolA})
	}
	if spec.MACPoolB != "" {
		out = append(out, fabricVNIC{Name: "eth1", Order: 1, Fabric: "B", MACPool: spec.MACPoolB})
	}
	return out
}

// attachVNICs adds one vNIC per fabric with a MAC pool to a LAN connectivity
// policy. The Ethernet adapter and network group policies the vNICs need are
// shared by name, and vNICs that already exist on the policy are skipped, so
// a repeated call creates nothing.
func (r *Intersight) attachVNICs(ctx context.Context, policy string, spec *models.PolicySpec, lanMoid, orgMoid string, deps map[models.Reference]models.RemoteObject) error {
	vnics := fabricVNICs(spec)
	if len(vnics) == 0 {
		return nil
	}
	dep := func(ref models.Reference) (string, error) {
		ro, ok := deps[ref]
		if !ok || ro.Moid == "" {
			return "", fmt.Errorf("unresolved reference %s", ref)
		}
		return ro.Moid, nil
	}

	var qosMoid string
	if spec.QoSPolicy != "" {
		moid, err := dep(models.Reference{Kind: models.KindPolicy, Type: string(models.PolicyQoS), Name: spec.QoSPolicy})
		if err != nil {
			return err
		}
		qosMoid = moid
	}

	adapterName := policy + "-eth-adapter"
	adapterMoid, err := r.ensure(ctx, ethAdapterPoliciesPath, orgFilter(adapterName, orgMoid),
		orgScoped("vnic.EthAdapterPolicy", adapterName, orgMoid, map[string]interface{}{
			"Description": "Ethernet adapter policy for " + policy,
		}))
	if err != nil {
		return err
	}

	for _, v := range vnics {
		poolMoid, err := dep(models.Reference{Kind: models.KindPool, Type: string(models.PoolMAC), Name: v.MACPool})
		if err != nil {
			return err
		}

		groupName := policy + "-network-group-" + v.Fabric
		groupMoid, err := r.ensure(ctx, networkGroupPoliciesPath, orgFilter(groupName, orgMoid),
			orgScoped("fabric.EthNetworkGroupPolicy", groupName, orgMoid, map[string]interface{}{
				"Description": fmt.Sprintf("Network group for fabric %s of %s", v.Fabric, policy),
				"VlanSettings": map[string]interface{}{
					"ClassId":      "fabric.VlanSettings",
					"ObjectType":   "fabric.VlanSettings",
					"NativeVlan":   nativeVLAN,
					"AllowedVlans": allowedVLANs,
				},
			}))
		if err != nil {
			return err
		}

		name := v.Name + "_" + policy
		body := map[string]interface{}{
			"ClassId":    "vnic.EthIf",
			"ObjectType": "vnic.EthIf",
			"Name":       name,
			"Order":      v.Order,
			"Placement": map[string]interface{}{
				"ClassId":    "vnic.PlacementSettings",
				"ObjectType": "vnic.PlacementSettings",
				"Id":         "MLOM",
				"PciLink":    v.Order,
				"SwitchId":   v.Fabric,
				"Uplink":     0,
			},
			"Cdn": map[string]interface{}{
				"ClassId":    "vnic.Cdn",
				"ObjectType": "vnic.Cdn",
				"Source":     "vnic",
				"Value":      v.Name,
			},
			"MacAddressType":              "POOL",
			"MacPool":                     moRef("macpool.Pool", poolMoid),
			"EthAdapterPolicy":            moRef("vnic.EthAdapterPolicy", adapterMoid),
			"FabricEthNetworkGroupPolicy": []map[string]interface{}{moRef("fabric.EthNetworkGroupPolicy", groupMoid)},
			"LanConnectivityPolicy":       moRef("vnic.LanConnectivityPolicy", lanMoid),
		}
		if qosMoid != "" {
			body["EthQosPolicy"] = moRef("vnic.EthQosPolicy", qosMoid)
		}
		filter := "Name eq " + quote(name) + " and LanConnectivityPolicy.Moid eq " + quote(lanMoid)
		if _, err := r.ensure(ctx, ethIfsPath, filter, body); err != nil {
			return fmt.Errorf("vNIC %s: %w", name, err)
		}
	}
	return nil
}

// ensure returns the Moid of the first object at path matching filter,
// creating it from body when there is none.
func (r *Intersight) ensure(ctx context.Context, path, filter string, body map[string]interface{}) (string, error) {
	var p page
	if err := r.client.GetJSON(ctx, path, url.Values{"$filter": {filter}, "$top": {"1"}}, &p); err != nil {
		return "", err
	}
	if len(p.Results) > 0 {
		var res Resource
		if err := json.Unmarshal(p.Results[0], &res); err != nil {
			return "", fmt.Errorf("parsing %s result: %w", path, err)
		}
		return res.Moid(), nil
	}
	resp, _, err := r.client.Post(ctx, path, body)
	if err != nil {
		return "", err
	}
	var created Resource
	if err := json.Unmarshal(resp, &created); err != nil {
		return "", fmt.Errorf("parsing %s response: %w", path, err)
	}
	logging.Debug(ctx, "created", zap.String(logging.FieldPath, path), zap.String(logging.FieldMoid, created.Moid()))
	return created.Moid(), nil
}

func orgFilter(name, orgMoid string) string {
	return "Name eq " + quote(name) + " and Organization.Moid eq " + quote(orgMoid)
}

// orgScoped builds the create body of an organization-owned object.
func orgScoped(classID, name, orgMoid string, fields map[string]interface{}) map[string]interface{} {
	body := map[string]interface{}{
		"ClassId":      classID,
		"ObjectType":   classID,
		"Name":         name,
		"Organization": moRef("organization.Organization", orgMoid),
	}
	for k, v := range fields {
		body[k] = v
	}
	return body
}
