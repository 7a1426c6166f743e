// Package providers defines the upstream capabilities notebooklets
// depend on: the query backend and the enrichment services (threat
// intelligence, geolocation, WHOIS). A Set is assembled once by the
// caller's setup step and passed into every notebooklet environment.
package providers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/metadata"
	"github.com/opensoc/notebooklets/pkg/timespan"
	"github.com/opensoc/notebooklets/pkg/types"
)

// Provider is the common surface of every upstream capability.
type Provider interface {
	Name() string
}

// QueryProvider executes a named query template against the data
// backend. A query that matches no rows returns an empty table, never
// an error; errors indicate connectivity or template failures.
type QueryProvider interface {
	Provider
	Query(ctx context.Context, name string, ts timespan.TimeSpan, params map[string]any) (*types.Table, error)
}

// TIVerdict is the per-indicator outcome of a threat intel lookup.
// Failed items carry an Err marker instead of aborting the batch.
type TIVerdict struct {
	IoC        string         `json:"ioc"`
	IoCType    string         `json:"ioc_type,omitempty"`
	Provider   string         `json:"provider"`
	Severity   string         `json:"severity,omitempty"`
	Confidence int            `json:"confidence,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Err        string         `json:"error,omitempty"`
}

// TIProvider looks up a batch of indicators, returning one verdict per
// input value.
type TIProvider interface {
	Provider
	Lookup(ctx context.Context, iocs []string) ([]TIVerdict, error)
}

// GeoResult is the per-address outcome of a geolocation lookup.
type GeoResult struct {
	Address  string             `json:"address"`
	Location *types.GeoLocation `json:"location,omitempty"`
	Err      string             `json:"error,omitempty"`
}

// GeoIPProvider locates a batch of IP addresses.
type GeoIPProvider interface {
	Provider
	Locate(ctx context.Context, addresses []string) ([]GeoResult, error)
}

// WhoisRecord is the structured result of a WHOIS lookup.
type WhoisRecord struct {
	Query      string `json:"query"`
	Registrar  string `json:"registrar,omitempty"`
	Created    string `json:"created,omitempty"`
	Expires    string `json:"expires,omitempty"`
	NameServer string `json:"name_server,omitempty"`
	Raw        string `json:"raw,omitempty"`
}

// WhoisProvider looks up registration data for a domain or IP.
type WhoisProvider interface {
	Provider
	Whois(ctx context.Context, query string) (*WhoisRecord, error)
}

// Set is the collection of configured providers handed to notebooklet
// environments. It is populated during setup and read-only afterward.
type Set struct {
	log       logrus.FieldLogger
	providers map[string]Provider
	query     QueryProvider
}

// NewSet creates an empty provider set.
func NewSet(log logrus.FieldLogger) *Set {
	return &Set{
		log:       log.WithField("component", "providers"),
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its own name. The first registered
// QueryProvider becomes the set's primary query backend.
func (s *Set) Register(p Provider) {
	s.providers[p.Name()] = p

	if qp, ok := p.(QueryProvider); ok && s.query == nil {
		s.query = qp
	}

	s.log.WithField("provider", p.Name()).Debug("Provider registered")
}

// QueryProvider returns the primary query backend, or nil when none is
// registered.
func (s *Set) QueryProvider() QueryProvider {
	return s.query
}

// Get returns the named provider.
func (s *Set) Get(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found in provider set", name)
	}

	return p, nil
}

// Has reports whether the named provider is registered.
func (s *Set) Has(name string) bool {
	_, ok := s.providers[name]

	return ok
}

// Names returns the registered provider names.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}

	return names
}

// TI returns the named provider as a TIProvider.
func (s *Set) TI(name string) (TIProvider, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	ti, ok := p.(TIProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q is not a threat intel provider", name)
	}

	return ti, nil
}

// GeoIP returns the named provider as a GeoIPProvider.
func (s *Set) GeoIP(name string) (GeoIPProvider, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	geo, ok := p.(GeoIPProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q is not a geolocation provider", name)
	}

	return geo, nil
}

// Whois returns the named provider as a WhoisProvider.
func (s *Set) Whois(name string) (WhoisProvider, error) {
	p, err := s.Get(name)
	if err != nil {
		return nil, err
	}

	who, ok := p.(WhoisProvider)
	if !ok {
		return nil, fmt.Errorf("provider %q is not a whois provider", name)
	}

	return who, nil
}

// Missing returns the requirements from reqs that no registered
// provider satisfies. A requirement may list alternatives separated by
// "|"; any one present provider satisfies it.
func (s *Set) Missing(reqs []string) []string {
	var missing []string

	for _, req := range reqs {
		if _, ok := s.Resolve(req); !ok {
			missing = append(missing, req)
		}
	}

	return missing
}

// Resolve binds a requirement to a concrete provider. When the
// requirement lists alternatives, the first present provider in
// declared order wins.
func (s *Set) Resolve(requirement string) (Provider, bool) {
	for _, alt := range metadata.Alternatives(requirement) {
		if p, ok := s.providers[alt]; ok {
			return p, true
		}
	}

	return nil, false
}
