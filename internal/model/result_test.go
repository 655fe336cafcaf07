package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestResult_MarshalJSON_RendersPayloadOnly(t *testing.T) {
	r := Result{
		Kind: KindSinglePeriod,
		SinglePeriod: &SinglePeriodResult{
			CompanyName:  "Acme Oy",
			ReportPeriod: "2024",
			Currency:     "EUR",
			FinancialData: map[string]FigureValue{
				"revenue": {Value: f64(1500000), Currency: "EUR", Period: "2024"},
			},
		},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Contains(t, out, "company_name")
	assert.Contains(t, out, "financial_data")
	// The union envelope must not leak into exports.
	assert.NotContains(t, out, "kind")
	assert.NotContains(t, out, "single_period")
}

func TestDecodeResult_RoundTrip(t *testing.T) {
	orig := Result{
		Kind: KindTimeSeries,
		TimeSeries: &TimeSeriesResult{
			AnalysisType: "timeseries",
			CompanyName:  "Acme Oy",
			Currency:     "EUR",
			FinancialData: map[string]SeriesEntry{
				"revenue": {
					MetricName: "Revenue",
					Years: map[string]YearValue{
						"2023": {Value: f64(1200000)},
						"2024": {Value: f64(1500000), Note: "audited"},
					},
				},
			},
		},
	}

	payload, err := json.Marshal(orig)
	require.NoError(t, err)

	got, err := DecodeResult(KindTimeSeries, payload)
	require.NoError(t, err)
	require.NotNil(t, got.TimeSeries)
	assert.Equal(t, KindTimeSeries, got.Kind)
	assert.Equal(t, "Acme Oy", got.TimeSeries.CompanyName)
	assert.Equal(t, "audited", got.TimeSeries.FinancialData["revenue"].Years["2024"].Note)
}

func TestDecodeResult_UnknownKindBecomesError(t *testing.T) {
	payload := []byte(`{"extraction_error":"Failed to parse model output as JSON","raw_response":"garbage"}`)

	got, err := DecodeResult(ResultKind("bogus"), payload)
	require.NoError(t, err)
	assert.Equal(t, KindError, got.Kind)
	require.NotNil(t, got.Error)
	assert.Equal(t, "garbage", got.Error.RawResponse)
}

func TestResult_CompanyName(t *testing.T) {
	assert.Equal(t, "Acme", Result{Kind: KindComprehensive, Comprehensive: &ComprehensiveResult{CompanyName: "Acme"}}.CompanyName())
	assert.Equal(t, "", Result{Kind: KindError, Error: &ExtractionError{}}.CompanyName())
}
