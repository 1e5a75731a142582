package prompts

import "testing"

func TestPromptFor(t *testing.T) {
	tests := []struct {
		name        string
		summaryType string
		expected    string
	}{
		{name: "day report", summaryType: TypeDayReport, expected: DayReportPrompt},
		{name: "key points", summaryType: TypeKeyPoints, expected: KeyPointsPrompt},
		{name: "action items", summaryType: TypeActionItems, expected: ActionItemsPrompt},
		{name: "brief", summaryType: TypeBrief, expected: BriefPrompt},
		{name: "detailed", summaryType: TypeDetailed, expected: DetailedPrompt},
		{name: "unknown falls back to day report", summaryType: "haiku", expected: DayReportPrompt},
		{name: "empty falls back to day report", summaryType: "", expected: DayReportPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PromptFor(tt.summaryType); got != tt.expected {
				t.Errorf("PromptFor(%q) returned the wrong prompt", tt.summaryType)
			}
		})
	}
}

func TestValidType(t *testing.T) {
	for _, valid := range []string{TypeDayReport, TypeKeyPoints, TypeActionItems, TypeBrief, TypeDetailed} {
		if !ValidType(valid) {
			t.Errorf("expected %q to be valid", valid)
		}
	}
	for _, invalid := range []string{"", "haiku", "DAY_REPORT"} {
		if ValidType(invalid) {
			t.Errorf("expected %q to be invalid", invalid)
		}
	}
}
