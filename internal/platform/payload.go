package platform

import (
	"fmt"

	"github.com/rflorenc/intersight-workbench/internal/models"
)

// uuidPrefix is the fixed prefix of UUID pools created by the workbench.
const uuidPrefix = "000025B5-0000-0000"

func moRef(objectType, moid string) map[string]interface{} {
	return map[string]interface{}{
		"ClassId":    "mo.MoRef",
		"ObjectType": objectType,
		"Moid":       moid,
	}
}

// payload builds the create body for a desired object. deps holds the
// resolved remote object of every reference in obj.Dependencies.
func payload(obj models.DesiredObject, orgMoid string, deps map[models.Reference]models.RemoteObject) (objectKind, map[string]interface{}, error) {
	k, err := lookupKind(obj.Kind, obj.Subtype())
	if err != nil {
		return objectKind{}, nil, err
	}
	body := map[string]interface{}{
		"ClassId":      k.ClassID,
		"ObjectType":   k.ClassID,
		"Name":         obj.Name,
		"Organization": moRef("organization.Organization", orgMoid),
	}

	dep := func(ref models.Reference) (models.RemoteObject, error) {
		ro, ok := deps[ref]
		if !ok || ro.Moid == "" {
			return models.RemoteObject{}, fmt.Errorf("unresolved reference %s", ref)
		}
		return ro, nil
	}

	switch a := obj.Attributes.(type) {
	case *models.PoolSpec:
		body["Description"] = a.Description
		body["AssignmentOrder"] = "sequential"
		switch a.Type {
		case models.PoolMAC:
			body["MacBlocks"] = []map[string]interface{}{{
				"ClassId":    "macpool.Block",
				"ObjectType": "macpool.Block",
				"From":       a.StartAddress,
				"Size":       a.Size,
			}}
		case models.PoolUUID:
			body["Prefix"] = uuidPrefix
			body["UuidSuffixBlocks"] = []map[string]interface{}{{
				"ClassId":    "uuidpool.UuidBlock",
				"ObjectType": "uuidpool.UuidBlock",
				"From":       a.StartAddress,
				"Size":       a.Size,
			}}
		}

	case *models.PolicySpec:
		body["Description"] = a.Description
		for field, v := range policyDefaults(a.Type) {
			body[field] = v
		}

	case *models.TemplateSpec:
		body["Description"] = a.Description
		body["TargetPlatform"] = string(a.TargetPlatform)
		var bucket []map[string]interface{}
		for _, ref := range obj.Dependencies {
			ro, err := dep(ref)
			if err != nil {
				return k, nil, err
			}
			if ref.Kind != models.KindPolicy {
				continue
			}
			pk, err := lookupKind(ref.Kind, ref.Type)
			if err != nil {
				return k, nil, err
			}
			bucket = append(bucket, moRef(pk.ClassID, ro.Moid))
		}
		body["PolicyBucket"] = bucket
		if a.UUIDPool != "" {
			ro, err := dep(models.Reference{Kind: models.KindPool, Type: string(models.PoolUUID), Name: a.UUIDPool})
			if err != nil {
				return k, nil, err
			}
			body["UuidAddressType"] = "POOL"
			body["UuidPool"] = moRef("uuidpool.Pool", ro.Moid)
		}

	case *models.ProfileSpec:
		body["Description"] = a.Description
		body["Type"] = "instance"
		tmpl, err := dep(models.Reference{Kind: models.KindTemplate, Name: a.Template})
		if err != nil {
			return k, nil, err
		}
		body["SrcTemplate"] = moRef("server.ProfileTemplate", tmpl.Moid)
		if a.Server != "" {
			srv, err := dep(models.Reference{Kind: models.KindServer, Name: a.Server})
			if err != nil {
				return k, nil, err
			}
			objectType := srv.Type
			if objectType == "" {
				objectType = "compute.RackUnit"
			}
			body["ServerAssignmentMode"] = "Static"
			body["AssignedServer"] = moRef(objectType, srv.Moid)
		}

	default:
		return k, nil, fmt.Errorf("unsupported attributes %T", obj.Attributes)
	}
	return k, body, nil
}

// policyDefaults are the settings every policy of a type is created with.
func policyDefaults(t models.PolicyType) map[string]interface{} {
	switch t {
	case models.PolicyBIOS:
		return map[string]interface{}{
			"CpuPerformance":                "enterprise",
			"CpuPowerManagement":            "performance",
			"CpuEnergyPerformance":          "performance",
			"IntelVirtualizationTechnology": "enabled",
		}
	case models.PolicyBoot:
		return map[string]interface{}{
			"ConfiguredBootMode":    "Uefi",
			"EnforceUefiSecureBoot": false,
			"BootDevices": []map[string]interface{}{{
				"ClassId":    "boot.VirtualMedia",
				"ObjectType": "boot.VirtualMedia",
				"Enabled":    true,
				"Name":       "KVM-DVD",
				"Subtype":    "kvm-mapped-dvd",
			}},
		}
	case models.PolicyVNIC:
		return map[string]interface{}{
			"TargetPlatform": string(models.PlatformFIAttached),
			"PlacementMode":  "custom",
		}
	case models.PolicyQoS:
		return map[string]interface{}{
			"Mtu":       9000,
			"RateLimit": 0,
			"Cos":       5,
			"Burst":     1024,
			"Priority":  "Best Effort",
		}
	case models.PolicyStorage:
		return map[string]interface{}{
			"UseJbodForVdGroupDrives": true,
			"UnusedDisksState":        "NoChange",
		}
	}
	return nil
}
