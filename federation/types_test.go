package federation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	assert.True(t, StatusRevoked.Terminal())
	assert.False(t, StatusSuspended.Terminal())
	assert.True(t, StatusPending.Valid())
	assert.False(t, Status("DRAFT").Valid())
}

func TestGovernance_Normalize(t *testing.T) {
	g, err := Governance{MaxRequestsPerHour: 10}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, ClassificationInternal, g.DataClassification)
	assert.Equal(t, DefaultBlockExcessLevels, g.BlockExcessLevels)

	g, err = Governance{DataClassification: ClassificationRestricted, BlockExcessLevels: 1}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, g.BlockExcessLevels)

	_, err = Governance{MaxRequestsPerDay: -1}.Normalize()
	assert.Error(t, err)
	_, err = Governance{DataClassification: "secret"}.Normalize()
	assert.Error(t, err)
}

func TestAgreement_Parties(t *testing.T) {
	a := &Agreement{InitiatorOrgID: "org-a", ResponderOrgID: "org-b"}

	assert.True(t, a.IsParty("org-a"))
	assert.True(t, a.IsParty("org-b"))
	assert.False(t, a.IsParty("org-c"))
	assert.False(t, a.IsParty(""))

	assert.Equal(t, "org-b", a.Partner("org-a"))
	assert.Equal(t, "org-a", a.Partner("org-b"))
	assert.Empty(t, a.Partner("org-c"))
}

func TestExposure_AllowsSkill(t *testing.T) {
	open := &Exposure{}
	assert.True(t, open.AllowsSkill("anything"))

	scoped := &Exposure{ExposedSkills: []string{"summarize"}}
	assert.True(t, scoped.AllowsSkill("summarize"))
	assert.True(t, scoped.AllowsSkill(""))
	assert.False(t, scoped.AllowsSkill("translate"))
}

func TestClassification(t *testing.T) {
	c, err := ParseClassification(" Confidential ")
	require.NoError(t, err)
	assert.Equal(t, ClassificationConfidential, c)

	_, err = ParseClassification("top-secret")
	assert.Error(t, err)

	assert.Less(t, ClassificationPublic.Level(), ClassificationInternal.Level())
	assert.Equal(t, ClassificationRestricted.Level(), Classification("unknown").Level())

	assert.Equal(t, ClassificationConfidential, MaxClassification(ClassificationInternal, ClassificationConfidential))
	assert.Equal(t, ClassificationInternal, MaxClassification(ClassificationInternal, ""))
	assert.Equal(t, ClassificationPublic, MaxClassification("", ClassificationPublic))
}
