package identity

import (
	"strings"

	"github.com/rapilink/backend/internal/models"
)

type Confidence int

const (
	ConfidenceLow Confidence = iota + 1
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "unknown"
	}
}

// TechnicianRef is whatever the upstream ticket says about its technician. Any field may be empty.
type TechnicianRef struct {
	ID       int
	Username string
	Name     string
}

func (r TechnicianRef) Empty() bool {
	return r.ID == 0 && strings.TrimSpace(r.Username) == "" && strings.TrimSpace(r.Name) == ""
}

// MatchRule is one step of the ordered matching chain.
type MatchRule interface {
	Name() string
	Confidence() Confidence
	Match(ref TechnicianRef, p models.Profile) bool
}

// DefaultRules returns the chain in priority order: staff id, username, name, containment, root token.
func DefaultRules() []MatchRule {
	return []MatchRule{
		staffIDRule{},
		usernameRule{},
		nameRule{},
		containmentRule{},
		rootTokenRule{},
	}
}

type staffIDRule struct{}

func (staffIDRule) Name() string           { return "staff_id" }
func (staffIDRule) Confidence() Confidence { return ConfidenceHigh }
func (staffIDRule) Match(ref TechnicianRef, p models.Profile) bool {
	return ref.ID != 0 && p.WisphubStaffID != nil && *p.WisphubStaffID == ref.ID
}

type usernameRule struct{}

func (usernameRule) Name() string           { return "username" }
func (usernameRule) Confidence() Confidence { return ConfidenceHigh }
func (usernameRule) Match(ref TechnicianRef, p models.Profile) bool {
	u := Normalize(ref.Username)
	if u == "" {
		return false
	}
	for _, local := range localIdentities(p) {
		if local == u {
			return true
		}
	}
	return false
}

type nameRule struct{}

func (nameRule) Name() string           { return "name" }
func (nameRule) Confidence() Confidence { return ConfidenceHigh }
func (nameRule) Match(ref TechnicianRef, p models.Profile) bool {
	n := Normalize(ref.Name)
	if n == "" {
		return false
	}
	for _, local := range localIdentities(p) {
		if local == n {
			return true
		}
	}
	return n == Normalize(p.FullName)
}

// containmentRule is the weakest rule: either string contains the other.
type containmentRule struct{}

func (containmentRule) Name() string           { return "containment" }
func (containmentRule) Confidence() Confidence { return ConfidenceLow }
func (containmentRule) Match(ref TechnicianRef, p models.Profile) bool {
	n := Normalize(ref.Name)
	if n == "" {
		return false
	}
	for _, local := range localIdentities(p) {
		if strings.Contains(n, local) || strings.Contains(local, n) {
			return true
		}
	}
	return false
}

type rootTokenRule struct{}

func (rootTokenRule) Name() string           { return "root_token" }
func (rootTokenRule) Confidence() Confidence { return ConfidenceMedium }
func (rootTokenRule) Match(ref TechnicianRef, p models.Profile) bool {
	upstream := ref.Username
	if strings.TrimSpace(upstream) == "" {
		upstream = ref.Name
	}
	root := RootToken(upstream)
	if root == "" {
		return false
	}
	for _, local := range []string{p.WisphubManualID, p.WisphubID} {
		if r := RootToken(local); r != "" && r == root {
			return true
		}
	}
	return false
}

// localIdentities returns the normalized, non-empty declared upstream identities of a profile.
func localIdentities(p models.Profile) []string {
	var out []string
	for _, s := range []string{p.WisphubManualID, p.WisphubID} {
		if n := Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
