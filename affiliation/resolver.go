package affiliation

import (
	"fmt"

	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

// Source names where an affiliation value came from.
type Source string

const (
	SourceNone     Source = ""
	SourceProfile  Source = "profile"
	SourceGroup    Source = "group"
	SourceReferrer Source = "referrer"
)

const (
	keyChurch  = "church_id"
	keyService = "service_id"
)

// Candidate is one layer of affiliation values.
type Candidate struct {
	Source    Source
	ChurchID  *uuid.UUID
	ServiceID *uuid.UUID
}

// Affiliation is the effective church/service pair with provenance.
type Affiliation struct {
	ChurchID      *uuid.UUID
	ServiceID     *uuid.UUID
	ChurchSource  Source
	ServiceSource Source
}

// HasChurch reports whether a church was resolved.
func (a Affiliation) HasChurch() bool {
	return a.ChurchID != nil && *a.ChurchID != uuid.Nil
}

// Resolver merges affiliation candidates with go-options. The existing
// profile outranks the target group, which outranks the referrer profile.
// Empty values never shadow a lower layer.
type Resolver struct{}

// NewResolver constructs an affiliation resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve computes the effective affiliation for the supplied candidates.
func (r *Resolver) Resolve(candidates ...Candidate) (Affiliation, error) {
	layers := make([]opts.Layer[map[string]any], 0, len(candidates))
	values := make(map[Source]map[string]any, len(candidates))
	for _, source := range resolutionOrder() {
		payload := collect(source, candidates)
		if len(payload) == 0 {
			continue
		}
		values[source] = payload
		scope := opts.NewScope(string(source), scopePriority(source),
			opts.WithScopeLabel(scopeLabel(source)),
			opts.WithScopeMetadata(map[string]any{"source": string(source)}))
		layers = append(layers, opts.NewLayer(scope, payload, opts.WithSnapshotID[map[string]any](scope.Name)))
	}
	if len(layers) == 0 {
		return Affiliation{}, nil
	}

	stack, err := opts.NewStack(layers...)
	if err != nil {
		return Affiliation{}, fmt.Errorf("affiliation: build stack: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Affiliation{}, fmt.Errorf("affiliation: merge: %w", err)
	}

	out := Affiliation{}
	if id, ok := parseID(merged.Value[keyChurch]); ok {
		out.ChurchID = &id
		out.ChurchSource = provenance(keyChurch, values)
	}
	if id, ok := parseID(merged.Value[keyService]); ok {
		out.ServiceID = &id
		out.ServiceSource = provenance(keyService, values)
	}
	return out, nil
}

// resolutionOrder lists sources lowest priority first.
func resolutionOrder() []Source {
	return []Source{SourceReferrer, SourceGroup, SourceProfile}
}

func collect(source Source, candidates []Candidate) map[string]any {
	var payload map[string]any
	for _, candidate := range candidates {
		if candidate.Source != source {
			continue
		}
		if candidate.ChurchID != nil && *candidate.ChurchID != uuid.Nil {
			if payload == nil {
				payload = make(map[string]any, 2)
			}
			if _, exists := payload[keyChurch]; !exists {
				payload[keyChurch] = candidate.ChurchID.String()
			}
		}
		if candidate.ServiceID != nil && *candidate.ServiceID != uuid.Nil {
			if payload == nil {
				payload = make(map[string]any, 2)
			}
			if _, exists := payload[keyService]; !exists {
				payload[keyService] = candidate.ServiceID.String()
			}
		}
	}
	return payload
}

func provenance(key string, values map[Source]map[string]any) Source {
	order := resolutionOrder()
	for i := len(order) - 1; i >= 0; i-- {
		if layer := values[order[i]]; layer != nil {
			if _, ok := layer[key]; ok {
				return order[i]
			}
		}
	}
	return SourceNone
}

func parseID(value any) (uuid.UUID, bool) {
	raw, ok := value.(string)
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func scopePriority(source Source) int {
	switch source {
	case SourceProfile:
		return opts.ScopePriorityUser
	case SourceGroup:
		return opts.ScopePriorityOrg
	default:
		return opts.ScopePriorityTenant
	}
}

func scopeLabel(source Source) string {
	switch source {
	case SourceProfile:
		return "Existing Profile"
	case SourceGroup:
		return "Target Group"
	default:
		return "Referrer Profile"
	}
}
