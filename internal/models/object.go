package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Kind identifies the class of an object handled by the workbench.
type Kind string

const (
	KindPool     Kind = "pool"
	KindPolicy   Kind = "policy"
	KindTemplate Kind = "template"
	KindProfile  Kind = "profile"

	// Remote-only kinds: referenced by desired objects, never created.
	KindOrganization  Kind = "organization"
	KindServer        Kind = "server"
	KindResourceGroup Kind = "resource_group"
)

// SyncOrder is the fixed order in which desired kinds are pushed.
var SyncOrder = []Kind{KindPool, KindPolicy, KindTemplate, KindProfile}

// PoolType is the identifier family of a pool.
type PoolType string

const (
	PoolMAC  PoolType = "MAC"
	PoolUUID PoolType = "UUID"
)

// ParsePoolType accepts "MAC", "MAC Pool", "uuid pool", etc.
func ParsePoolType(s string) (PoolType, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimSpace(strings.TrimSuffix(v, "POOL"))
	switch v {
	case "MAC":
		return PoolMAC, nil
	case "UUID":
		return PoolUUID, nil
	}
	return "", fmt.Errorf("unknown pool type %q (expected MAC Pool or UUID Pool)", s)
}

// Label is the value written to the Pool Type column.
func (t PoolType) Label() string {
	return string(t) + " Pool"
}

var macRE = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)

// NormalizeStartAddress validates the first address of a pool block and
// returns it in the form the remote system expects: upper-case colon
// separated MACs, and "XXXX-XXXXXXXXXXXX" UUID suffixes (left padded).
func NormalizeStartAddress(t PoolType, s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch t {
	case PoolMAC:
		s = strings.ReplaceAll(s, "-", ":")
		if !macRE.MatchString(s) {
			return "", fmt.Errorf("invalid MAC address %q", s)
		}
		return s, nil
	case PoolUUID:
		var hex strings.Builder
		for _, r := range s {
			switch {
			case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
				hex.WriteRune(r)
			case r == '-':
			default:
				return "", fmt.Errorf("invalid UUID suffix %q", s)
			}
		}
		if hex.Len() == 0 || hex.Len() > 16 {
			return "", fmt.Errorf("invalid UUID suffix %q: expected up to 16 hex digits", s)
		}
		h := strings.Repeat("0", 16-hex.Len()) + hex.String()
		return h[:4] + "-" + h[4:], nil
	}
	return "", fmt.Errorf("unknown pool type %q", t)
}

// PolicyType is the policy family, as written in the Policies sheet.
type PolicyType string

const (
	PolicyBIOS    PolicyType = "BIOS"
	PolicyBoot    PolicyType = "Boot"
	PolicyVNIC    PolicyType = "vNIC"
	PolicyQoS     PolicyType = "QoS"
	PolicyStorage PolicyType = "Storage"
)

// PolicyTypes lists the supported policy types in workbook order.
var PolicyTypes = []PolicyType{PolicyBIOS, PolicyBoot, PolicyVNIC, PolicyQoS, PolicyStorage}

// ParsePolicyType matches case-insensitively; "LAN Connectivity" is an alias for vNIC.
func ParsePolicyType(s string) (PolicyType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSpace(strings.TrimSuffix(v, "policy"))
	for _, t := range PolicyTypes {
		if strings.ToLower(string(t)) == v {
			return t, nil
		}
	}
	if v == "lan connectivity" || v == "lan" {
		return PolicyVNIC, nil
	}
	return "", fmt.Errorf("unknown policy type %q", s)
}

// TargetPlatform of a server profile template.
type TargetPlatform string

const (
	PlatformFIAttached TargetPlatform = "FIAttached"
	PlatformStandalone TargetPlatform = "Standalone"
)

// ParseTargetPlatform defaults to FIAttached for an empty cell.
func ParseTargetPlatform(s string) (TargetPlatform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fiattached":
		return PlatformFIAttached, nil
	case "standalone":
		return PlatformStandalone, nil
	}
	return "", fmt.Errorf("unknown target platform %q (expected FIAttached or Standalone)", s)
}

// Attributes is the typed payload of a DesiredObject. Exactly one
// implementation exists per desired Kind.
type Attributes interface {
	Kind() Kind
	// References returns the named objects these attributes point at.
	References() []Reference
}

// PoolSpec describes a MAC or UUID pool with a single block.
type PoolSpec struct {
	Type         PoolType
	Description  string
	StartAddress string
	Size         int
}

func (*PoolSpec) Kind() Kind { return KindPool }

func (*PoolSpec) References() []Reference { return nil }

// PolicySpec describes a policy created with the workbench defaults for its
// type. A vNIC policy gets one vNIC per fabric whose MAC pool is set, each
// bound to the QoS policy.
type PolicySpec struct {
	Type        PolicyType
	Description string
	MACPoolA    string
	MACPoolB    string
	QoSPolicy   string
}

func (*PolicySpec) Kind() Kind { return KindPolicy }

func (s *PolicySpec) References() []Reference {
	var refs []Reference
	for _, name := range []string{s.MACPoolA, s.MACPoolB} {
		if name != "" {
			refs = append(refs, Reference{Kind: KindPool, Type: string(PoolMAC), Name: name})
		}
	}
	if s.QoSPolicy != "" {
		refs = append(refs, Reference{Kind: KindPolicy, Type: string(PolicyQoS), Name: s.QoSPolicy})
	}
	return refs
}

// TemplateSpec describes a server profile template and the policies it binds.
type TemplateSpec struct {
	Description    string
	ResourceGroup  string
	TargetPlatform TargetPlatform
	BIOSPolicy     string
	BootPolicy     string
	LANPolicy      string
	StoragePolicy  string
	UUIDPool       string
}

func (*TemplateSpec) Kind() Kind { return KindTemplate }

func (s *TemplateSpec) References() []Reference {
	var refs []Reference
	add := func(t PolicyType, name string) {
		if name != "" {
			refs = append(refs, Reference{Kind: KindPolicy, Type: string(t), Name: name})
		}
	}
	add(PolicyBIOS, s.BIOSPolicy)
	add(PolicyBoot, s.BootPolicy)
	add(PolicyVNIC, s.LANPolicy)
	add(PolicyStorage, s.StoragePolicy)
	if s.UUIDPool != "" {
		refs = append(refs, Reference{Kind: KindPool, Type: string(PoolUUID), Name: s.UUIDPool})
	}
	return refs
}

// ProfileSpec describes a server profile derived from a template.
type ProfileSpec struct {
	Description   string
	ResourceGroup string
	Template      string
	Server        string
	Deploy        bool
}

func (*ProfileSpec) Kind() Kind { return KindProfile }

func (s *ProfileSpec) References() []Reference {
	var refs []Reference
	if s.Template != "" {
		refs = append(refs, Reference{Kind: KindTemplate, Name: s.Template})
	}
	if s.Server != "" {
		refs = append(refs, Reference{Kind: KindServer, Name: s.Server})
	}
	return refs
}

// Reference names another object. Organization scope is inherited from the
// referencing object, except for servers which are global.
type Reference struct {
	Kind Kind   `json:"kind"`
	Type string `json:"type,omitempty"`
	Name string `json:"name"`
}

func (r Reference) String() string {
	if r.Type != "" {
		return fmt.Sprintf("%s %s %q", r.Type, r.Kind, r.Name)
	}
	return fmt.Sprintf("%s %q", r.Kind, r.Name)
}

// Key is the natural key of a desired object.
type Key struct {
	Kind         Kind   `json:"kind"`
	Type         string `json:"type,omitempty"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
}

func (k Key) String() string {
	kind := string(k.Kind)
	if k.Type != "" {
		kind = k.Type + " " + kind
	}
	return fmt.Sprintf("%s %q (org %s)", kind, k.Name, k.Organization)
}

// DesiredObject is one row of the workbook, typed.
type DesiredObject struct {
	Kind         Kind
	Name         string
	Organization string
	Attributes   Attributes
	Dependencies []Reference
}

// NewDesiredObject builds a DesiredObject whose kind and dependencies are
// derived from its attributes.
func NewDesiredObject(name, org string, attrs Attributes) DesiredObject {
	return DesiredObject{
		Kind:         attrs.Kind(),
		Name:         name,
		Organization: org,
		Attributes:   attrs,
		Dependencies: attrs.References(),
	}
}

// Subtype returns the pool or policy type, or "" for other kinds.
func (o DesiredObject) Subtype() string {
	switch a := o.Attributes.(type) {
	case *PoolSpec:
		return string(a.Type)
	case *PolicySpec:
		return string(a.Type)
	}
	return ""
}

// Key returns the natural key (kind, subtype, name, organization).
func (o DesiredObject) Key() Key {
	return Key{Kind: o.Kind, Type: o.Subtype(), Name: o.Name, Organization: o.Organization}
}

// Ref returns the Reference other objects use to point at this one.
func (o DesiredObject) Ref() Reference {
	return Reference{Kind: o.Kind, Type: o.Subtype(), Name: o.Name}
}

// RemoteObject is an object as it exists on the remote system.
type RemoteObject struct {
	Kind         Kind      `json:"kind"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Organization string    `json:"organization,omitempty"`
	Moid         string    `json:"moid"`
	ModTime      time.Time `json:"mod_time"`
}

// Server is a physical server summary.
type Server struct {
	Moid       string `json:"moid"`
	Name       string `json:"name"`
	Serial     string `json:"serial"`
	Model      string `json:"model"`
	ObjectType string `json:"object_type"`
	DeviceMoid string `json:"device_moid,omitempty"` // asset.DeviceRegistration
}

// Label is the dropdown text for a server: "Name (Serial)".
func (s Server) Label() string {
	if s.Serial == "" {
		return s.Name
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Serial)
}

// ParseServerLabel splits "Name (Serial)" into its parts. A bare value is
// returned as the name.
func ParseServerLabel(label string) (name, serial string) {
	label = strings.TrimSpace(label)
	if strings.HasSuffix(label, ")") {
		if i := strings.LastIndex(label, " ("); i > 0 {
			return strings.TrimSpace(label[:i]), strings.TrimSpace(label[i+2 : len(label)-1])
		}
	}
	return label, ""
}

// GroupMapping maps a resource group name to the labels of its servers.
type GroupMapping map[string][]string

// Groups returns the group names sorted.
func (m GroupMapping) Groups() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Listing is a complete listing of remote objects indexed by name.
type Listing struct {
	items  []RemoteObject
	byName map[string]int
}

// NewListing indexes items by name; the first occurrence of a name wins.
func NewListing(items []RemoteObject) *Listing {
	l := &Listing{items: items, byName: make(map[string]int, len(items))}
	for i, item := range items {
		if _, ok := l.byName[item.Name]; !ok {
			l.byName[item.Name] = i
		}
	}
	return l
}

// Get returns the object with the exact name.
func (l *Listing) Get(name string) (RemoteObject, bool) {
	if l == nil {
		return RemoteObject{}, false
	}
	i, ok := l.byName[name]
	if !ok {
		return RemoteObject{}, false
	}
	return l.items[i], true
}

// Items returns all objects in listing order.
func (l *Listing) Items() []RemoteObject {
	if l == nil {
		return nil
	}
	return l.items
}

// Names returns the sorted, de-duplicated names.
func (l *Listing) Names() []string {
	if l == nil {
		return nil
	}
	names := make([]string, 0, len(l.byName))
	for name := range l.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of objects.
func (l *Listing) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}
