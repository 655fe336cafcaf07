package model

import "encoding/json"

// ResultKind discriminates the extraction result variants. Every decoded
// result carries exactly one kind; consumers switch on it instead of sniffing
// for optional fields.
type ResultKind string

const (
	KindSinglePeriod  ResultKind = "single_period"
	KindTimeSeries    ResultKind = "timeseries"
	KindComprehensive ResultKind = "comprehensive"
	KindError         ResultKind = "extraction_error"
)

// Result is the tagged union produced by the response interpreter. Exactly one
// of the variant pointers is non-nil, matching Kind.
type Result struct {
	Kind          ResultKind           `json:"kind"`
	SinglePeriod  *SinglePeriodResult  `json:"single_period,omitempty"`
	TimeSeries    *TimeSeriesResult    `json:"timeseries,omitempty"`
	Comprehensive *ComprehensiveResult `json:"comprehensive,omitempty"`
	Error         *ExtractionError     `json:"error,omitempty"`
}

// Payload returns the active variant as written by the LLM, suitable for
// direct JSON export.
func (r Result) Payload() any {
	switch r.Kind {
	case KindSinglePeriod:
		return r.SinglePeriod
	case KindTimeSeries:
		return r.TimeSeries
	case KindComprehensive:
		return r.Comprehensive
	default:
		return r.Error
	}
}

// CompanyName returns the reported company name for any non-error variant.
func (r Result) CompanyName() string {
	switch r.Kind {
	case KindSinglePeriod:
		return r.SinglePeriod.CompanyName
	case KindTimeSeries:
		return r.TimeSeries.CompanyName
	case KindComprehensive:
		return r.Comprehensive.CompanyName
	}
	return ""
}

// FigureValue is one extracted figure in a single-period result. Value is nil
// when the figure was not found in the documents; otherwise it is an absolute
// amount in the stated currency.
type FigureValue struct {
	Value    *float64 `json:"value"`
	Currency string   `json:"currency,omitempty"`
	Period   string   `json:"period,omitempty"`
}

// SinglePeriodResult holds one value per registry figure for a single
// reporting period.
type SinglePeriodResult struct {
	CompanyName   string                 `json:"company_name"`
	ReportPeriod  string                 `json:"report_period"`
	Currency      string                 `json:"currency"`
	FinancialData map[string]FigureValue `json:"financial_data"`
}

// YearValue is one year's cell in a time-series result.
type YearValue struct {
	Value    *float64 `json:"value"`
	Currency string   `json:"currency,omitempty"`
	Note     string   `json:"note,omitempty"`
}

// SeriesEntry maps a registry figure to its per-year values.
type SeriesEntry struct {
	MetricName string               `json:"metric_name"`
	Years      map[string]YearValue `json:"years"`
}

// TimeSeriesResult holds an 8-year window of values per registry figure.
type TimeSeriesResult struct {
	AnalysisType  string                 `json:"analysis_type"`
	CompanyName   string                 `json:"company_name"`
	Currency      string                 `json:"currency"`
	FinancialData map[string]SeriesEntry `json:"financial_data"`
}

// ComprehensiveItem is one open-ended extracted metric; comprehensive mode is
// not keyed by the figure registry.
type ComprehensiveItem struct {
	MetricName string   `json:"metric_name"`
	Value      *float64 `json:"value"`
	Currency   string   `json:"currency,omitempty"`
	Period     string   `json:"period,omitempty"`
	Context    string   `json:"context,omitempty"`
	Category   string   `json:"category,omitempty"`
}

// ComprehensiveResult holds an open list of extracted metrics.
type ComprehensiveResult struct {
	AnalysisType  string              `json:"analysis_type"`
	CompanyName   string              `json:"company_name"`
	Currency      string              `json:"currency"`
	ExtractedData []ComprehensiveItem `json:"extracted_data"`
}

// ExtractionError is the recoverable parse-failure sentinel: the pipeline
// completes and the UI renders the raw text for manual inspection.
type ExtractionError struct {
	ExtractionError string `json:"extraction_error"`
	RawResponse     string `json:"raw_response"`
}

// MarshalJSON renders the active variant directly, so an exported result file
// matches the shape the LLM was asked to produce.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

// DecodeResult reconstructs a Result from a stored kind plus payload JSON.
func DecodeResult(kind ResultKind, payload []byte) (Result, error) {
	r := Result{Kind: kind}
	var err error
	switch kind {
	case KindSinglePeriod:
		r.SinglePeriod = &SinglePeriodResult{}
		err = json.Unmarshal(payload, r.SinglePeriod)
	case KindTimeSeries:
		r.TimeSeries = &TimeSeriesResult{}
		err = json.Unmarshal(payload, r.TimeSeries)
	case KindComprehensive:
		r.Comprehensive = &ComprehensiveResult{}
		err = json.Unmarshal(payload, r.Comprehensive)
	default:
		r.Kind = KindError
		r.Error = &ExtractionError{}
		err = json.Unmarshal(payload, r.Error)
	}
	return r, err
}
