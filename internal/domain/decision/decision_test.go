package decision

import "testing"

func TestKnown(t *testing.T) {
	for _, id := range []ToolID{ToolSearch, ToolKnowledge, ToolCompute, ToolResponder} {
		if !Known(id) {
			t.Errorf("Known(%q) = false, want true", id)
		}
	}
	for _, id := range []ToolID{ToolHybrid, "", "f9", "web"} {
		if Known(id) {
			t.Errorf("Known(%q) = true, want false", id)
		}
	}
}

func TestResolveHybrid(t *testing.T) {
	if got := Resolve(ToolHybrid); got != ToolSearch {
		t.Errorf("Resolve(hybrid) = %q, want %q", got, ToolSearch)
	}
	if got := Resolve(ToolCompute); got != ToolCompute {
		t.Errorf("Resolve(f3) = %q, want f3", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Decision
		wantErr bool
	}{
		{"valid single", Decision{Target: ToolSearch, Confidence: 0.85}, false},
		{"hybrid accepted", Decision{Target: ToolHybrid, Confidence: 1.0}, false},
		{"unknown target", Decision{Target: "f7", Confidence: 0.5}, true},
		{"confidence too high", Decision{Target: ToolResponder, Confidence: 1.5}, true},
		{"empty plan", Decision{Target: ToolSearch, Confidence: 0.9, Plan: []PlanStep{}}, true},
		{"plan with unknown tool", Decision{
			Target: ToolSearch, Confidence: 0.9,
			Plan: []PlanStep{{ID: "s1", Tool: "nope"}},
		}, true},
		{"valid plan", Decision{
			Target: ToolSearch, Confidence: 0.9,
			Plan: []PlanStep{{ID: "s1", Tool: ToolSearch}, {ID: "s2", Tool: ToolResponder}},
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrimaryHighestConfidenceTiesByOrder(t *testing.T) {
	plan := []PlanStep{
		{ID: "s1", Tool: ToolSearch, Confidence: 0.9},
		{ID: "s2", Tool: ToolResponder, Confidence: 0.95},
		{ID: "s3", Tool: ToolCompute, Confidence: 0.95},
	}
	p, ok := Primary(plan)
	if !ok {
		t.Fatal("Primary returned ok=false")
	}
	if p.ID != "s2" {
		t.Errorf("primary = %s, want s2 (highest confidence, first on tie)", p.ID)
	}

	if _, ok := Primary(nil); ok {
		t.Error("Primary(nil) ok = true, want false")
	}
}
