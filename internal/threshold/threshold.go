// Package threshold is the Threshold Evaluator (spec component C): a pure,
// deterministic function mapping a single vital-sign reading to the set
// of alerts it should raise. It has no persistence or transport
// concerns — the ingestion pipeline is responsible for taking its output
// and turning it into store.Alert rows.
package threshold

import "github.com/sentrywear/sentry/internal/store"

// Candidate is a not-yet-persisted alert derived from a reading. The
// ingestion pipeline fills in DeviceID/UserID/VitalID/Timestamp before
// handing these to the store.
type Candidate struct {
	Type      string
	Severity  string
	Message   string
	Value     float64
	Threshold float64
}

// Policy holds the configurable threshold constants (spec.md §6). Values
// default to spec.md §4.C's defaults; callers load these from
// internal/config.
type Policy struct {
	HeartRateLow  int
	HeartRateHigh int
	SpO2Low       int
	TempLow       float64
	TempHigh      float64
	COHigh        float64
	COCritical    float64
	H2SHigh       float64
	H2SCritical   float64
	CH4High       float64
	CH4Critical   float64
}

// DefaultPolicy returns the threshold constants named in spec.md §4.C.
func DefaultPolicy() Policy {
	return Policy{
		HeartRateLow:  60,
		HeartRateHigh: 100,
		SpO2Low:       95,
		TempLow:       36.0,
		TempHigh:      37.5,
		COHigh:        35,
		COCritical:    200,
		H2SHigh:       10,
		H2SCritical:   50,
		CH4High:       10,
		CH4Critical:   25,
	}
}

// Evaluate runs every rule in spec.md §4.C against r and returns the
// alerts that fire. A reading with every field unset produces no
// candidates — rules never fire on null (spec.md §4.C: "Missing fields
// simply skip their rule; no rule fires on null").
func Evaluate(policy Policy, r store.Reading) []Candidate {
	var out []Candidate

	if r.FallDetected {
		out = append(out, Candidate{
			Type:     store.AlertTypeFall,
			Severity: store.SeverityCritical,
			Message:  "fall detected",
		})
	}

	if r.HeartRate != nil {
		hr := float64(*r.HeartRate)
		switch {
		case *r.HeartRate < policy.HeartRateLow:
			out = append(out, Candidate{
				Type: store.AlertTypeHeartRate, Severity: store.SeverityMedium,
				Message: "heart rate below normal range", Value: hr, Threshold: float64(policy.HeartRateLow),
			})
		case *r.HeartRate > policy.HeartRateHigh:
			out = append(out, Candidate{
				Type: store.AlertTypeHeartRate, Severity: store.SeverityHigh,
				Message: "heart rate above normal range", Value: hr, Threshold: float64(policy.HeartRateHigh),
			})
		}
	}

	if r.SpO2 != nil && *r.SpO2 < policy.SpO2Low {
		out = append(out, Candidate{
			Type: store.AlertTypeSpO2, Severity: store.SeverityHigh,
			Message: "blood oxygen below safe threshold", Value: float64(*r.SpO2), Threshold: float64(policy.SpO2Low),
		})
	}

	if r.Temperature != nil {
		temp := *r.Temperature
		switch {
		case temp < policy.TempLow:
			out = append(out, Candidate{
				Type: store.AlertTypeTemperature, Severity: store.SeverityMedium,
				Message: "body temperature below normal range", Value: temp, Threshold: policy.TempLow,
			})
		case temp > policy.TempHigh:
			out = append(out, Candidate{
				Type: store.AlertTypeTemperature, Severity: store.SeverityMedium,
				Message: "body temperature above normal range", Value: temp, Threshold: policy.TempHigh,
			})
		}
	}

	if r.CO != nil {
		co := *r.CO
		switch {
		case co > policy.COCritical:
			out = append(out, Candidate{
				Type: store.AlertTypeCO, Severity: store.SeverityCritical,
				Message: "carbon monoxide at critical level", Value: co, Threshold: policy.COCritical,
			})
		case co > policy.COHigh:
			out = append(out, Candidate{
				Type: store.AlertTypeCO, Severity: store.SeverityHigh,
				Message: "carbon monoxide above safe level", Value: co, Threshold: policy.COHigh,
			})
		}
	}

	if r.H2S != nil {
		h2s := *r.H2S
		switch {
		case h2s > policy.H2SCritical:
			out = append(out, Candidate{
				Type: store.AlertTypeH2S, Severity: store.SeverityCritical,
				Message: "hydrogen sulfide at critical level", Value: h2s, Threshold: policy.H2SCritical,
			})
		case h2s > policy.H2SHigh:
			out = append(out, Candidate{
				Type: store.AlertTypeH2S, Severity: store.SeverityHigh,
				Message: "hydrogen sulfide above safe level", Value: h2s, Threshold: policy.H2SHigh,
			})
		}
	}

	if r.CH4 != nil {
		ch4 := *r.CH4
		switch {
		case ch4 > policy.CH4Critical:
			out = append(out, Candidate{
				Type: store.AlertTypeCH4, Severity: store.SeverityCritical,
				Message: "methane at critical level (% LEL)", Value: ch4, Threshold: policy.CH4Critical,
			})
		case ch4 > policy.CH4High:
			out = append(out, Candidate{
				Type: store.AlertTypeCH4, Severity: store.SeverityHigh,
				Message: "methane above safe level (% LEL)", Value: ch4, Threshold: policy.CH4High,
			})
		}
	}

	return out
}
