// Package domain defines the typed node identifiers, node kinds, and error
// kinds shared by every layer of the matching engine. It is the validation
// gate at the engine's entry points: identifiers are parsed and typed once
// here, never re-sniffed from string prefixes deeper in the pipeline.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a graph node.
type Kind string

const (
	KindJob       Kind = "job"
	KindSkill     Kind = "skill"
	KindCompany   Kind = "company"
	KindCandidate Kind = "candidate"
)

// ValidKinds is the fixed set of recognised node kinds.
var ValidKinds = map[Kind]bool{
	KindJob: true, KindSkill: true, KindCompany: true, KindCandidate: true,
}

// NodeID is a typed node identifier: a kind plus a domain key. Its string
// form is "<kind>_<key>", e.g. "job_42" or "skill_Python".
type NodeID struct {
	Kind Kind
	Key  string
}

// JobID, SkillID, CompanyID and CandidateID construct typed identifiers.
func JobID(key string) NodeID       { return NodeID{Kind: KindJob, Key: key} }
func SkillID(key string) NodeID     { return NodeID{Kind: KindSkill, Key: key} }
func CompanyID(key string) NodeID   { return NodeID{Kind: KindCompany, Key: key} }
func CandidateID(key string) NodeID { return NodeID{Kind: KindCandidate, Key: key} }

// String renders the canonical prefixed form.
func (id NodeID) String() string {
	return string(id.Kind) + "_" + id.Key
}

// IsZero reports whether the identifier is empty.
func (id NodeID) IsZero() bool { return id.Kind == "" && id.Key == "" }

// ParseID parses a prefixed identifier string. Unrecognised prefixes default
// to skill, mirroring how auto-created neighbors are typed.
func ParseID(s string) NodeID {
	for k := range ValidKinds {
		prefix := string(k) + "_"
		if strings.HasPrefix(s, prefix) {
			return NodeID{Kind: k, Key: s[len(prefix):]}
		}
	}
	return NodeID{Kind: KindSkill, Key: s}
}

// ValidateKind checks that a kind belongs to the fixed set.
func ValidateKind(k Kind) error {
	if !ValidKinds[k] {
		return fmt.Errorf("%w: %q", ErrInvalidType, k)
	}
	return nil
}

// Metadata is the open per-node attribute mapping. Values are scalars or
// lists of scalars.
type Metadata map[string]any

// Text flattens the metadata values into a space-joined string for text
// embedding, skipping non-scalar values. Keys are not included.
func (m Metadata) Text() string {
	var parts []string
	for _, k := range sortedKeys(m) {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case int:
			parts = append(parts, fmt.Sprintf("%d", v))
		case int64:
			parts = append(parts, fmt.Sprintf("%d", v))
		case float64:
			parts = append(parts, fmt.Sprintf("%g", v))
		case []string:
			parts = append(parts, strings.Join(v, " "))
		case []any:
			for _, e := range v {
				switch s := e.(type) {
				case string:
					parts = append(parts, s)
				case int, int64, float64:
					parts = append(parts, fmt.Sprint(s))
				}
			}
		}
	}
	return strings.Join(parts, " ")
}

// Map iteration order is random; sort keys so the derived text form (and
// therefore the text embedding) is deterministic for equal metadata.
func sortedKeys(m Metadata) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
