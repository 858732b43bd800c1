package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapilink/backend/internal/models"
	"github.com/rapilink/backend/internal/wisphub"
)

func intPtr(v int) *int { return &v }

func TestNormalize(t *testing.T) {
	assert.Equal(t, "mario vasquez", Normalize("  Mário  VÁSQUEZ "))
	assert.Equal(t, "nunez", Normalize("Núñez"))
	assert.Equal(t, "", Normalize("   "))
}

func TestRootToken(t *testing.T) {
	assert.Equal(t, "sistema", RootToken("sistemas@rapilink-sas"))
	assert.Equal(t, "sistema", RootToken("Sistema@rapilink"))
	assert.Equal(t, "", RootToken(""))
}

func TestStaffIDRuleBeatsMismatchedName(t *testing.T) {
	profiles := []models.Profile{
		{ID: "p-name", FullName: "Carlos Diaz", WisphubID: "carlos diaz"},
		{ID: "p-id", FullName: "Someone Else", WisphubID: "other", WisphubStaffID: intPtr(42)},
	}
	m, ok := NewResolver(nil).Resolve(TechnicianRef{ID: 42, Name: "Carlos Diaz"}, profiles)
	require.True(t, ok)
	assert.Equal(t, "p-id", m.Profile.ID)
	assert.Equal(t, "staff_id", m.Rule)
	assert.Equal(t, ConfidenceHigh, m.Confidence)
}

func TestUsernameRuleIgnoresCaseAndAccents(t *testing.T) {
	profiles := []models.Profile{{ID: "p1", WisphubID: "José@rapilink"}}
	m, ok := NewResolver(nil).Resolve(TechnicianRef{Username: "JOSE@RAPILINK"}, profiles)
	require.True(t, ok)
	assert.Equal(t, "username", m.Rule)
}

func TestNameRuleMatchesFullName(t *testing.T) {
	profiles := []models.Profile{{ID: "p1", FullName: "Laura Ruíz", WisphubID: "lruiz@rapilink"}}
	m, ok := NewResolver(nil).Resolve(TechnicianRef{Name: "laura ruiz"}, profiles)
	require.True(t, ok)
	assert.Equal(t, "name", m.Rule)
}

func TestContainmentPicksFirstProfileDeterministically(t *testing.T) {
	profiles := []models.Profile{
		{ID: "first", WisphubID: "mario"},
		{ID: "second", WisphubID: "vasquez"},
	}
	r := NewResolver(nil)
	for i := 0; i < 5; i++ {
		m, ok := r.Resolve(TechnicianRef{Name: "Mario Vasquez"}, profiles)
		require.True(t, ok)
		assert.Equal(t, "first", m.Profile.ID)
		assert.Equal(t, "containment", m.Rule)
		assert.Equal(t, ConfidenceLow, m.Confidence)
	}
}

func TestExactRuleOutranksEarlierContainmentCandidate(t *testing.T) {
	profiles := []models.Profile{
		{ID: "loose", WisphubID: "mario"},
		{ID: "exact", WisphubID: "mario vasquez"},
	}
	m, ok := NewResolver(nil).Resolve(TechnicianRef{Name: "Mario Vasquez"}, profiles)
	require.True(t, ok)
	assert.Equal(t, "exact", m.Profile.ID)
}

func TestRootTokenBridgesNearDuplicates(t *testing.T) {
	profiles := []models.Profile{{ID: "p1", WisphubID: "sistemas@rapilink-sas"}}
	m, ok := NewResolver(nil).Resolve(TechnicianRef{Username: "sistema@rapilink"}, profiles)
	require.True(t, ok)
	assert.Equal(t, "root_token", m.Rule)
}

func TestUnassignedAndUnmatched(t *testing.T) {
	profiles := []models.Profile{{ID: "p1", WisphubID: "laura"}}
	r := NewResolver(nil)
	_, ok := r.Resolve(TechnicianRef{Name: "Sin asignar"}, profiles)
	assert.False(t, ok)
	_, ok = r.Resolve(TechnicianRef{Name: "Pedro Perez"}, profiles)
	assert.False(t, ok)
	_, ok = r.Resolve(TechnicianRef{}, profiles)
	assert.False(t, ok)
}

func TestOverridesTakePrecedence(t *testing.T) {
	profiles := []models.Profile{
		{ID: "p1", Email: "mario@rapilink.co", WisphubID: "mario"},
		{ID: "p2", Email: "mvasquez@rapilink.co", WisphubID: "mario vasquez"},
	}
	overrides := ParseOverrides("Mario Vásquez = mario@rapilink.co; broken; =x")
	require.Len(t, overrides, 1)

	m, ok := NewResolver(overrides).Resolve(TechnicianRef{Name: "Mario Vasquez"}, profiles)
	require.True(t, ok)
	assert.Equal(t, "p1", m.Profile.ID)
	assert.Equal(t, "override", m.Rule)
}

func TestResolveStaffID(t *testing.T) {
	staff := []wisphub.Staff{
		{ID: 7, Name: "Laura Ruiz", Username: "lruiz@rapilink"},
		{ID: 42, Name: "Mario Vasquez", Username: "sistemas@rapilink-sas"},
	}

	id, ok := ResolveStaffID(models.Profile{WisphubID: "sistemas@rapilink-sas"}, staff)
	require.True(t, ok)
	assert.Equal(t, 42, id)

	id, ok = ResolveStaffID(models.Profile{FullName: "Laura Ruíz"}, staff)
	require.True(t, ok)
	assert.Equal(t, 7, id)

	id, ok = ResolveStaffID(models.Profile{WisphubStaffID: intPtr(7), WisphubID: "sistemas@rapilink-sas"}, staff)
	require.True(t, ok)
	assert.Equal(t, 7, id)

	_, ok = ResolveStaffID(models.Profile{FullName: "Nobody"}, staff)
	assert.False(t, ok)
}

func TestStaffDisplayName(t *testing.T) {
	staff := []wisphub.Staff{{ID: 42, Name: " Mario Vasquez ", Username: "sistemas@rapilink-sas"}}
	assert.Equal(t, "Mario Vasquez", StaffDisplayName("sistemas@rapilink-sas", staff))
	assert.Equal(t, "Mario Vasquez", StaffDisplayName("mario vasquez", staff))
	assert.Equal(t, "", StaffDisplayName("", staff))
	assert.Equal(t, "", StaffDisplayName("other@rapilink", staff))
}

func TestStaffIDByName(t *testing.T) {
	staff := []wisphub.Staff{
		{ID: 7, Name: "Laura Ruiz", Username: "lruiz@rapilink"},
		{ID: 42, Name: "Mario Vasquez", Username: "sistemas@rapilink-sas"},
	}

	id, ok := StaffIDByName("mario vásquez", staff)
	require.True(t, ok)
	assert.Equal(t, 42, id)

	id, ok = StaffIDByName("LRUIZ@rapilink", staff)
	require.True(t, ok)
	assert.Equal(t, 7, id)

	_, ok = StaffIDByName("Valentina Ruiz", staff)
	assert.False(t, ok)
	_, ok = StaffIDByName("", staff)
	assert.False(t, ok)
}
