package inventory

import (
	"net/http"
	"net/url"
	"strconv"
)

// Capability is an operation an entity's API supports
type Capability uint

const (
	CanRead Capability = 1 << iota
	CanCreate
	CanUpdate
	CanDelete
	CanDeleteMany
	CanSync
	CanSyncParent
	CanListDetail
)

var capabilityNames = []struct {
	cap  Capability
	name string
}{
	{CanRead, "read"},
	{CanCreate, "create"},
	{CanUpdate, "update"},
	{CanDelete, "delete"},
	{CanDeleteMany, "delete-many"},
	{CanSync, "sync"},
	{CanSyncParent, "sync-parent"},
	{CanListDetail, "list-detail"},
}

func (c Capability) String() string {
	for _, n := range capabilityNames {
		if c == n.cap {
			return n.name
		}
	}
	return "capability(" + strconv.Itoa(int(c)) + ")"
}

// UpdateMode selects how an entity submits updates
type UpdateMode int

const (
	// UpdatePut sends PUT {base}/update/{id}
	UpdatePut UpdateMode = iota
	// UpdatePost sends POST {base}/update/{id} for servers without PUT
	UpdatePost
	// UpdatePutFallbackPost sends PUT and retries once as POST on 405
	UpdatePutFallbackPost
)

func (m UpdateMode) String() string {
	switch m {
	case UpdatePut:
		return "PUT"
	case UpdatePost:
		return "POST"
	case UpdatePutFallbackPost:
		return "PUT, POST on 405"
	}
	return "unknown"
}

// Hints narrow a record lookup to a parent resource
type Hints struct {
	OltUUID     string
	OltCardUUID string
}

// Entity declares one resource type: its endpoints, capabilities and
// payload rules.
type Entity struct {
	Name         string // CLI and audit name, e.g. "olt-card"
	Title        string // human label used in fallback error messages
	Base         string // API path, e.g. "/master/olt-card"
	DefaultLimit int
	Filters      []string // list query filters the API understands
	Capabilities Capability
	Update       UpdateMode
	Sanitizer    Sanitizer

	// ListDetail paths are tried in order by FetchListDetail
	ListDetail []string

	// Read returns the ordered lookup candidates for id
	Read func(id string, hints Hints) []Candidate

	// Sync returns the sync candidates; hint may be empty
	Sync func(hint string) []Candidate

	// SyncParent returns the sync-by-parent candidates
	SyncParent func(parent string) []Candidate
}

// Supports reports whether every capability in c is present
func (e *Entity) Supports(c Capability) bool {
	return e.Capabilities&c == c
}

// CapabilityNames lists the supported capabilities
func (e *Entity) CapabilityNames() []string {
	var names []string
	for _, n := range capabilityNames {
		if e.Supports(n.cap) {
			names = append(names, n.name)
		}
	}
	return names
}

// Entity names
const (
	Router        = "router"
	OLT           = "olt"
	OLTCard       = "olt-card"
	OLTPonPort    = "olt-pon-port"
	Bandwidth     = "bandwith"
	PacketProfile = "packet-profile"
	GroupProfile  = "group-profile"
)

const crud = CanRead | CanCreate | CanUpdate | CanDelete

// Entities returns the definitions of every entity, in display order
func Entities() []*Entity {
	return []*Entity{
		routerEntity(),
		oltEntity(),
		oltCardEntity(),
		ponPortEntity(),
		bandwidthEntity(),
		packetProfileEntity(),
		groupProfileEntity(),
	}
}

func get(path string) Candidate {
	return Candidate{Method: http.MethodGet, Path: path}
}

func post(path string, body any) Candidate {
	return Candidate{Method: http.MethodPost, Path: path, Body: body}
}

// readPaths builds GET candidates for {base}/{id} and {base}/{prefix}/{id}
func readPaths(base string, prefixes ...string) func(string, Hints) []Candidate {
	return func(id string, _ Hints) []Candidate {
		esc := url.PathEscape(id)
		out := []Candidate{get(base + "/" + esc)}
		for _, p := range prefixes {
			out = append(out, get(base+"/"+p+"/"+esc))
		}
		return out
	}
}

// stickySync tries POST {base}/sync/{id} when an id is given, then
// POST {base}/sync with the id in the body.
func stickySync(base string) func(string) []Candidate {
	return func(id string) []Candidate {
		var out []Candidate
		body := map[string]any{}
		if id != "" {
			out = append(out, post(base+"/sync/"+url.PathEscape(id), map[string]any{}))
			body["uuid"] = id
		}
		return append(out, post(base+"/sync", body))
	}
}

func routerEntity() *Entity {
	const base = "/master/router"
	return &Entity{
		Name:         Router,
		Title:        "Router",
		Base:         base,
		DefaultLimit: 10,
		Filters:      []string{"search"},
		Capabilities: crud | CanDeleteMany | CanSync,
		Update:       UpdatePost,
		Sanitizer: Sanitizer{
			Strings: []string{
				"uuid", "code", "brand", "location", "latitude", "longitude",
				"ip_address", "username", "password", "community", "port",
				"ip_address_radius", "secret_radius",
			},
		},
		Read: readPaths(base, "detail", "show"),
		Sync: stickySync(base),
	}
}

func oltEntity() *Entity {
	const base = "/master/olt"
	return &Entity{
		Name:         OLT,
		Title:        "OLT",
		Base:         base,
		DefaultLimit: 100,
		Filters:      []string{"search"},
		Capabilities: crud,
		Update:       UpdatePost,
		Sanitizer: Sanitizer{
			Strings: []string{
				"code", "brand", "type", "mode", "location", "latitude",
				"longitude", "ip_address", "username", "password", "community",
			},
		},
		Read: readPaths(base, "detail", "show"),
	}
}

func oltCardEntity() *Entity {
	const base = "/master/olt-card"
	return &Entity{
		Name:         OLTCard,
		Title:        "OLT Card",
		Base:         base,
		DefaultLimit: 10,
		Filters:      []string{"olt_uuid", "search"},
		Capabilities: crud | CanDeleteMany | CanSyncParent | CanListDetail,
		Update:       UpdatePut,
		Sanitizer: Sanitizer{
			Strings: []string{"uuid", "olt_uuid", "code", "card_type", "model"},
			Numbers: []string{"slot_number"},
		},
		ListDetail: []string{base + "/list-detail"},
		Read:       readPaths(base, "detail"),
		SyncParent: func(olt string) []Candidate {
			esc := url.PathEscape(olt)
			return []Candidate{
				post(base+"/sync-olt/"+esc, map[string]any{}),
				get(base + "/sync-olt/" + esc),
				post(base+"/sync-olt", map[string]any{"olt_uuid": olt}),
				post(base+"/sync-card", map[string]any{"olt_uuid": olt}),
			}
		},
	}
}

// ponPortHintLimit bounds the detail list scanned for a hinted lookup
const ponPortHintLimit = 200

func ponPortEntity() *Entity {
	const base = "/master/olt-pon-port"
	return &Entity{
		Name:         OLTPonPort,
		Title:        "OLT PON Port",
		Base:         base,
		DefaultLimit: 10,
		Filters:      []string{"olt_uuid", "olt_card_uuid", "search"},
		Capabilities: crud | CanDeleteMany | CanListDetail,
		Update:       UpdatePut,
		Sanitizer: Sanitizer{
			Strings:         []string{"uuid", "code", "gpon_olt", "endpoint", "oid_code", "latitude", "longitude"},
			Numbers:         []string{"port_number"},
			NullableNumbers: []string{"txdbm"},
			EmptyToNull:     []string{"endpoint", "oid_code"},
		},
		ListDetail: []string{base + "/details"},
		Read: func(id string, h Hints) []Candidate {
			esc := url.PathEscape(id)
			byID := url.Values{"uuid": {id}}
			out := []Candidate{
				get(base + "/" + esc),
				get(base + "/detail/" + esc),
				{Method: http.MethodGet, Path: base + "/detail", Params: byID},
				{Method: http.MethodGet, Path: base + "/details", Params: byID},
			}
			if h.OltUUID != "" || h.OltCardUUID != "" {
				params := url.Values{
					"page":  {"1"},
					"limit": {strconv.Itoa(ponPortHintLimit)},
					"uuid":  {id},
				}
				if h.OltUUID != "" {
					params.Set("olt_uuid", h.OltUUID)
				}
				if h.OltCardUUID != "" {
					params.Set("olt_card_uuid", h.OltCardUUID)
				}
				out = append(out, Candidate{Method: http.MethodGet, Path: base + "/details", Params: params})
			}
			return out
		},
	}
}

func bandwidthEntity() *Entity {
	const base = "/master/bandwith"
	return &Entity{
		Name:         Bandwidth,
		Title:        "Bandwidth",
		Base:         base,
		DefaultLimit: 100,
		Filters:      []string{"search"},
		Capabilities: crud,
		Update:       UpdatePut,
		Sanitizer: Sanitizer{
			Strings: []string{
				"name", "upload_min", "upload_max", "upload_min_unit", "upload_max_unit",
				"download_min", "download_max", "download_min_unit", "download_max_unit",
			},
		},
		Read: readPaths(base),
	}
}

func packetProfileEntity() *Entity {
	return &Entity{
		Name:         PacketProfile,
		Title:        "Packet Profile",
		Base:         "/master/packet-profile",
		DefaultLimit: 10,
		Filters:      []string{"router_uuid"},
	}
}

func groupProfileEntity() *Entity {
	const base = "/master/group-profile"
	return &Entity{
		Name:         GroupProfile,
		Title:        "Group Profile",
		Base:         base,
		DefaultLimit: 10,
		Filters:      []string{"router_uuid", "search"},
		Capabilities: crud | CanDeleteMany | CanSync | CanListDetail,
		Update:       UpdatePutFallbackPost,
		Sanitizer: Sanitizer{
			Strings: []string{
				"uuid", "name", "type", "parent_pool", "module",
				"ip_local", "first_ip", "last_ip", "router_uuid",
			},
		},
		ListDetail: []string{base + "/list-detail", base + "/list-details"},
		Read:       readPaths(base, "detail", "show"),
		Sync:       stickySync(base),
	}
}
