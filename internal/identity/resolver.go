package identity

import (
	"strings"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

// Match is the outcome of a successful resolution.
type Match struct {
	Profile    models.Profile
	Rule       string
	Confidence Confidence
}

// Overrides is the configured exception table: normalized upstream name or username
// mapped to a profile id or email.
type Overrides map[string]string

// ParseOverrides reads "upstream=target;upstream=target" pairs.
func ParseOverrides(raw string) Overrides {
	out := Overrides{}
	for _, pair := range strings.Split(raw, ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = Normalize(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func (o Overrides) lookup(ref TechnicianRef, profiles []models.Profile) (models.Profile, bool) {
	if len(o) == 0 {
		return models.Profile{}, false
	}
	for _, key := range []string{ref.Username, ref.Name} {
		target, ok := o[Normalize(key)]
		if !ok {
			continue
		}
		for _, p := range profiles {
			if p.ID == target || (p.Email != "" && Normalize(p.Email) == Normalize(target)) {
				return p, true
			}
		}
	}
	return models.Profile{}, false
}

type Resolver struct {
	Rules     []MatchRule
	Overrides Overrides
}

func NewResolver(overrides Overrides) *Resolver {
	return &Resolver{Rules: DefaultRules(), Overrides: overrides}
}

// Resolve walks the rule chain in order; within a rule the first profile in directory
// order wins. The override table is consulted before any rule.
func (r *Resolver) Resolve(ref TechnicianRef, profiles []models.Profile) (Match, bool) {
	if ref.Empty() || (IsUnassigned(ref.Name) && ref.ID == 0 && ref.Username == "") {
		return Match{}, false
	}
	if p, ok := r.Overrides.lookup(ref, profiles); ok {
		return Match{Profile: p, Rule: "override", Confidence: ConfidenceHigh}, true
	}
	for _, rule := range r.Rules {
		for _, p := range profiles {
			if rule.Match(ref, p) {
				return Match{Profile: p, Rule: rule.Name(), Confidence: rule.Confidence()}, true
			}
		}
	}
	return Match{}, false
}

// ResolveStaffID finds the numeric upstream staff id for a local profile. The upstream write
// path only accepts numeric technician ids.
func ResolveStaffID(p models.Profile, staff []wisphub.Staff) (int, bool) {
	if p.WisphubStaffID != nil {
		for _, s := range staff {
			if s.ID == *p.WisphubStaffID {
				return s.ID, true
			}
		}
	}
	ident := Normalize(p.UpstreamIdentity())
	email := Normalize(p.Email)
	fullName := Normalize(p.FullName)

	passes := []func(s wisphub.Staff) bool{
		func(s wisphub.Staff) bool {
			u := Normalize(s.Username)
			return u != "" && (u == ident || u == email)
		},
		func(s wisphub.Staff) bool {
			e := Normalize(s.Email)
			return e != "" && (e == ident || e == email)
		},
		func(s wisphub.Staff) bool {
			n := Normalize(s.Name)
			return n != "" && (n == fullName || n == ident)
		},
		func(s wisphub.Staff) bool {
			root := RootToken(p.UpstreamIdentity())
			return root != "" && RootToken(s.Username) == root
		},
	}
	for _, pass := range passes {
		for _, s := range staff {
			if s.ID != 0 && pass(s) {
				return s.ID, true
			}
		}
	}
	return 0, false
}

// StaffDisplayName maps a declared upstream identity string to the staff member's display
// name, which is what the upstream ticket list carries. Returns "" when nothing matches.
func StaffDisplayName(ident string, staff []wisphub.Staff) string {
	n := Normalize(ident)
	if n == "" {
		return ""
	}
	passes := []func(s wisphub.Staff) bool{
		func(s wisphub.Staff) bool { return Normalize(s.Username) == n || Normalize(s.Email) == n },
		func(s wisphub.Staff) bool { return Normalize(s.Name) == n },
		func(s wisphub.Staff) bool {
			root := RootToken(ident)
			return root != "" && RootToken(s.Username) == root
		},
	}
	for _, pass := range passes {
		for _, s := range staff {
			if pass(s) {
				return strings.TrimSpace(s.Name)
			}
		}
	}
	return ""
}

// StaffIDByName maps a technician as the upstream record names them, by display name or
// username, to the staff member's numeric id.
func StaffIDByName(name string, staff []wisphub.Staff) (int, bool) {
	n := Normalize(name)
	if n == "" || IsUnassigned(name) {
		return 0, false
	}
	for _, s := range staff {
		if s.ID != 0 && (Normalize(s.Name) == n || Normalize(s.Username) == n) {
			return s.ID, true
		}
	}
	return 0, false
}
