package claude

import (
	"testing"

	"github.com/novamind/engram/core"
)

func TestParseJudgment(t *testing.T) {
	cases := []struct {
		text      string
		write     bool
		reason    core.TriggerReason
		recall    bool
		ambiguous bool
	}{
		{"save_preference", true, core.ReasonExplicitPreference, false, false},
		{"save_plan, recall", true, core.ReasonPlanAgreement, true, false},
		{"save_confirmation,ambiguous", true, core.ReasonFactConfirmation, false, true},
		{"recall", false, "", true, false},
		{"none", false, "", false, false},
		{"  Save_Preference \n", true, core.ReasonExplicitPreference, false, false},
		{"something_unexpected", false, "", false, false},
	}
	for _, tc := range cases {
		j := parseJudgment(tc.text)
		if j.Write != tc.write || j.Reason != tc.reason || j.Recall != tc.recall || j.Ambiguous != tc.ambiguous {
			t.Errorf("parseJudgment(%q) = %+v", tc.text, j)
		}
	}
}
