package types

// EntityType categorizes the investigative subject a notebooklet accepts.
type EntityType string

const (
	EntityHost      EntityType = "host"
	EntityIPAddress EntityType = "ip_address"
	EntityAccount   EntityType = "account"
	EntityURL       EntityType = "url"
	EntityAlert     EntityType = "alert"
)

// Host describes a host under investigation. Fields are populated
// opportunistically from heartbeat and topology lookups; not every
// source provides every field.
type Host struct {
	HostName     string         `json:"host_name"`
	DNSDomain    string         `json:"dns_domain,omitempty"`
	OSFamily     string         `json:"os_family,omitempty"`
	OSVersion    string         `json:"os_version,omitempty"`
	Environment  string         `json:"environment,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	AzureDetails map[string]any `json:"azure_details,omitempty"`
}

// IPAddressType classifies an IP address.
type IPAddressType string

const (
	IPTypePublic    IPAddressType = "public"
	IPTypePrivate   IPAddressType = "private"
	IPTypeLoopback  IPAddressType = "loopback"
	IPTypeMulticast IPAddressType = "multicast"
	IPTypeReserved  IPAddressType = "reserved"
	IPTypeInvalid   IPAddressType = "invalid"
)

// IPAddress describes an IP under investigation with optional enrichment.
type IPAddress struct {
	Address  string        `json:"address"`
	Type     IPAddressType `json:"type,omitempty"`
	Hostname string        `json:"hostname,omitempty"`
	Location *GeoLocation  `json:"location,omitempty"`
}

// GeoLocation is the result of a geolocation lookup.
type GeoLocation struct {
	CountryCode string  `json:"country_code,omitempty"`
	CountryName string  `json:"country_name,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	ASN         string  `json:"asn,omitempty"`
	ASNDesc     string  `json:"asn_description,omitempty"`
}

// Account describes a user account under investigation.
type Account struct {
	Name     string `json:"name"`
	Domain   string `json:"domain,omitempty"`
	UPN      string `json:"upn,omitempty"`
	SourceOS string `json:"source_os,omitempty"`
}

// URL describes a URL under investigation, decomposed for enrichment.
type URL struct {
	URL    string `json:"url"`
	Scheme string `json:"scheme,omitempty"`
	Host   string `json:"host,omitempty"`
	Domain string `json:"domain,omitempty"`
	TLD    string `json:"tld,omitempty"`
}
