package threshold

import (
	"testing"

	"github.com/sentrywear/sentry/internal/store"
)

func intp(v int) *int          { return &v }
func f64p(v float64) *float64  { return &v }

func TestEvaluateNoFields(t *testing.T) {
	got := Evaluate(DefaultPolicy(), store.Reading{})
	if len(got) != 0 {
		t.Errorf("Evaluate() on empty reading = %+v, want no candidates", got)
	}
}

func TestEvaluateFall(t *testing.T) {
	got := Evaluate(DefaultPolicy(), store.Reading{FallDetected: true})
	if len(got) != 1 || got[0].Type != store.AlertTypeFall || got[0].Severity != store.SeverityCritical {
		t.Fatalf("Evaluate() fall = %+v, want single critical fall candidate", got)
	}
}

func TestEvaluateHeartRate(t *testing.T) {
	tests := []struct {
		name     string
		hr       int
		wantType string
		wantSev  string
		wantNone bool
	}{
		{"low", 50, store.AlertTypeHeartRate, store.SeverityMedium, false},
		{"high", 120, store.AlertTypeHeartRate, store.SeverityHigh, false},
		{"normal", 75, "", "", true},
		{"boundary low", 60, "", "", true},
		{"boundary high", 100, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(DefaultPolicy(), store.Reading{HeartRate: intp(tt.hr)})
			if tt.wantNone {
				if len(got) != 0 {
					t.Fatalf("Evaluate(hr=%d) = %+v, want none", tt.hr, got)
				}
				return
			}
			if len(got) != 1 || got[0].Type != tt.wantType || got[0].Severity != tt.wantSev {
				t.Fatalf("Evaluate(hr=%d) = %+v, want type=%s severity=%s", tt.hr, got, tt.wantType, tt.wantSev)
			}
		})
	}
}

func TestEvaluateSpO2(t *testing.T) {
	low := Evaluate(DefaultPolicy(), store.Reading{SpO2: intp(90)})
	if len(low) != 1 || low[0].Severity != store.SeverityHigh {
		t.Fatalf("Evaluate(spo2=90) = %+v, want single high candidate", low)
	}

	ok := Evaluate(DefaultPolicy(), store.Reading{SpO2: intp(98)})
	if len(ok) != 0 {
		t.Fatalf("Evaluate(spo2=98) = %+v, want none", ok)
	}
}

func TestEvaluateTemperature(t *testing.T) {
	tests := []struct {
		name     string
		temp     float64
		wantNone bool
	}{
		{"low", 35.0, false},
		{"high", 38.5, false},
		{"normal", 36.8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(DefaultPolicy(), store.Reading{Temperature: f64p(tt.temp)})
			if tt.wantNone && len(got) != 0 {
				t.Fatalf("Evaluate(temp=%v) = %+v, want none", tt.temp, got)
			}
			if !tt.wantNone && (len(got) != 1 || got[0].Type != store.AlertTypeTemperature) {
				t.Fatalf("Evaluate(temp=%v) = %+v, want single temperature candidate", tt.temp, got)
			}
		})
	}
}

func TestEvaluateGasSensors(t *testing.T) {
	tests := []struct {
		name     string
		reading  store.Reading
		wantType string
		wantSev  string
	}{
		{"co high", store.Reading{CO: f64p(50)}, store.AlertTypeCO, store.SeverityHigh},
		{"co critical", store.Reading{CO: f64p(250)}, store.AlertTypeCO, store.SeverityCritical},
		{"h2s high", store.Reading{H2S: f64p(20)}, store.AlertTypeH2S, store.SeverityHigh},
		{"h2s critical", store.Reading{H2S: f64p(60)}, store.AlertTypeH2S, store.SeverityCritical},
		{"ch4 high", store.Reading{CH4: f64p(15)}, store.AlertTypeCH4, store.SeverityHigh},
		{"ch4 critical", store.Reading{CH4: f64p(30)}, store.AlertTypeCH4, store.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(DefaultPolicy(), tt.reading)
			if len(got) != 1 || got[0].Type != tt.wantType || got[0].Severity != tt.wantSev {
				t.Fatalf("Evaluate(%+v) = %+v, want type=%s severity=%s", tt.reading, got, tt.wantType, tt.wantSev)
			}
		})
	}
}

func TestEvaluateMultipleRulesFire(t *testing.T) {
	r := store.Reading{
		FallDetected: true,
		HeartRate:    intp(130),
		SpO2:         intp(88),
	}
	got := Evaluate(DefaultPolicy(), r)
	if len(got) != 3 {
		t.Fatalf("Evaluate() = %d candidates, want 3: %+v", len(got), got)
	}
}

func TestEvaluateCustomPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.HeartRateHigh = 90
	got := Evaluate(policy, store.Reading{HeartRate: intp(95)})
	if len(got) != 1 || got[0].Threshold != 90 {
		t.Fatalf("Evaluate() with custom policy = %+v, want threshold 90", got)
	}
}
