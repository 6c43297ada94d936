package assist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokkuu100/wakiliweb-sub002/internal/clause"
	"github.com/gokkuu100/wakiliweb-sub002/internal/policy"
	"github.com/gokkuu100/wakiliweb-sub002/internal/workflow"
)

func newMergeFixture(t *testing.T) (*workflow.State, *clause.Engine) {
	t.Helper()
	pol, err := policy.Default()
	require.NoError(t, err)
	eng := clause.NewEngine(pol)
	s := workflow.CreateInitial()
	eng.InitClauses(s)
	return s, eng
}

func TestMerge_FillsGapsOnly(t *testing.T) {
	s, eng := newMergeFixture(t)
	require.NoError(t, s.ApplyField("disclosing.email", "amina@wanjiku.co.ke", workflow.SourceUser))

	report := Merge(s, eng, &Suggestions{
		FormFields: map[string]string{
			"disclosing.email":    "bot@suggested.example", // user already set this
			"terms.governing_law": "the Republic of Kenya",
		},
	})

	assert.Equal(t, "amina@wanjiku.co.ke", s.Disclosing.Email, "user value must survive the merge")
	assert.Equal(t, "the Republic of Kenya", s.Terms.GoverningLaw)
	assert.Contains(t, report.SkippedFields, "disclosing.email")
	assert.Contains(t, report.AppliedFields, "terms.governing_law")
}

func TestMerge_NeverClobbersExistingValues(t *testing.T) {
	s, eng := newMergeFixture(t)
	// Assistant-sourced value from an earlier merge: still non-empty, still
	// protected.
	require.NoError(t, s.ApplyField("terms.purpose", "evaluation of a joint venture", workflow.SourceAssistant))

	report := Merge(s, eng, &Suggestions{
		FormFields: map[string]string{"terms.purpose": "something else entirely"},
	})

	assert.Equal(t, "evaluation of a joint venture", s.Terms.Purpose)
	assert.Contains(t, report.SkippedFields, "terms.purpose")
	assert.Empty(t, report.AppliedFields)
}

func TestMerge_SkipsUnknownAndEmpty(t *testing.T) {
	s, eng := newMergeFixture(t)

	report := Merge(s, eng, &Suggestions{
		FormFields: map[string]string{
			"terms.nonexistent": "x",
			"terms.purpose":     "",
		},
	})

	assert.Empty(t, report.AppliedFields)
	assert.Len(t, report.SkippedFields, 2)
	assert.Empty(t, s.EditHistory, "skipped suggestions must leave no trace in history")
}

func TestMerge_RecordsAssistantSource(t *testing.T) {
	s, eng := newMergeFixture(t)

	Merge(s, eng, &Suggestions{
		FormFields: map[string]string{"terms.jurisdiction": "Nairobi"},
	})

	require.Len(t, s.EditHistory, 1)
	assert.Equal(t, workflow.SourceAssistant, s.EditHistory[0].Source)
	assert.False(t, s.UserSet("terms.jurisdiction"))
}

func TestMerge_AdvancesClauseCompletion(t *testing.T) {
	s, eng := newMergeFixture(t)

	Merge(s, eng, &Suggestions{
		FormFields: map[string]string{
			"terms.governing_law": "the Republic of Kenya",
			"terms.jurisdiction":  "Nairobi",
		},
	})

	assert.True(t, s.Clauses["governing_law"].Completed,
		"assistant-filled fields count toward clause completion")
}

func TestMerge_ClauseRecommendations(t *testing.T) {
	s, eng := newMergeFixture(t)

	report := Merge(s, eng, &Suggestions{
		RecommendedClauses: []string{"non_compete", "governing_law", "force_majeure"},
	})

	// Inactive optional clauses activate; mandatory clauses only get the
	// recommendation flag; unknown keys are ignored.
	assert.Equal(t, []string{"non_compete"}, report.ActivatedClauses)
	assert.True(t, s.Clauses["non_compete"].Active)
	assert.True(t, s.Clauses["non_compete"].AIRecommended)
	assert.True(t, s.Clauses["governing_law"].Active)
	assert.True(t, s.Clauses["governing_law"].AIRecommended)
	assert.NotContains(t, s.Clauses, "force_majeure")
}

func TestMerge_RiskAssessment(t *testing.T) {
	s, eng := newMergeFixture(t)

	report := Merge(s, eng, &Suggestions{
		RiskAssessment: map[string]string{
			"non_compete":   "high",
			"governing_law": "catastrophic", // invalid level, dropped
			"force_majeure": "low",          // unknown clause, dropped
		},
	})

	assert.Equal(t, []string{"non_compete"}, report.AssessedClauses)
	assert.Equal(t, workflow.RiskHigh, s.Clauses["non_compete"].RiskLevel)
	assert.NotEqual(t, workflow.RiskLevel("catastrophic"), s.Clauses["governing_law"].RiskLevel)
}

func TestMerge_NilSuggestions(t *testing.T) {
	s, eng := newMergeFixture(t)

	report := Merge(s, eng, nil)

	assert.Empty(t, report.AppliedFields)
	assert.Empty(t, s.EditHistory)
}
