// Package interpret decodes raw LLM text into the typed extraction result.
// The decode happens once at this boundary; downstream consumers switch on
// Result.Kind instead of re-sniffing fields.
package interpret

import (
	"encoding/json"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/prompt"
)

// maxRawSnippet caps how much of an unparseable response is carried in the
// error sentinel.
const maxRawSnippet = 1000

// Interpret parses rawText into a typed result for the given mode. The ladder
// is strict parse, then lenient extraction of the first top-level JSON object,
// then automated repair, then the error sentinel. It never fails: the caller
// always receives something to display or export.
func Interpret(rawText string, mode prompt.Mode) model.Result {
	if obj, ok := parseObject(rawText); ok {
		return decode(obj, mode)
	}

	cleaned := cleanJSON(rawText)
	if obj, ok := parseObject(cleaned); ok {
		return decode(obj, mode)
	}

	if repaired, err := jsonrepair.RepairJSON(cleaned); err == nil {
		if obj, ok := parseObject(repaired); ok {
			zap.L().Debug("interpret: recovered response via json repair")
			return decode(obj, mode)
		}
	}

	zap.L().Warn("interpret: failed to parse model output",
		zap.String("mode", string(mode)),
		zap.Int("response_len", len(rawText)),
	)
	return model.Result{
		Kind: model.KindError,
		Error: &model.ExtractionError{
			ExtractionError: "Failed to parse model output as JSON",
			RawResponse:     truncate(rawText, maxRawSnippet),
		},
	}
}

// parseObject attempts a strict parse and requires a top-level JSON object.
func parseObject(text string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

// cleanJSON strips markdown code fences and slices from the first "{" to the
// last "}" so prose around the object does not break parsing.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// decode unmarshals a parsed object into the variant selected by its
// analysis_type tag, falling back to the requested mode when the tag is
// absent. An absent tag on a single-period response is the normal case.
func decode(obj json.RawMessage, mode prompt.Mode) model.Result {
	var tag struct {
		AnalysisType string `json:"analysis_type"`
	}
	_ = json.Unmarshal(obj, &tag)

	kind := kindFor(tag.AnalysisType, mode)

	switch kind {
	case model.KindTimeSeries:
		var ts model.TimeSeriesResult
		if err := json.Unmarshal(obj, &ts); err != nil {
			return sentinel(obj, err)
		}
		ts.AnalysisType = "timeseries"
		return model.Result{Kind: model.KindTimeSeries, TimeSeries: &ts}
	case model.KindComprehensive:
		var c model.ComprehensiveResult
		if err := json.Unmarshal(obj, &c); err != nil {
			return sentinel(obj, err)
		}
		c.AnalysisType = "comprehensive"
		return model.Result{Kind: model.KindComprehensive, Comprehensive: &c}
	default:
		var sp model.SinglePeriodResult
		if err := json.Unmarshal(obj, &sp); err != nil {
			return sentinel(obj, err)
		}
		return model.Result{Kind: model.KindSinglePeriod, SinglePeriod: &sp}
	}
}

func kindFor(tag string, mode prompt.Mode) model.ResultKind {
	switch tag {
	case "timeseries":
		return model.KindTimeSeries
	case "comprehensive":
		return model.KindComprehensive
	case "":
		switch mode {
		case prompt.ModeTimeSeries:
			return model.KindTimeSeries
		case prompt.ModeComprehensive:
			return model.KindComprehensive
		}
	}
	return model.KindSinglePeriod
}

func sentinel(obj json.RawMessage, err error) model.Result {
	zap.L().Warn("interpret: response shape mismatch", zap.Error(err))
	return model.Result{
		Kind: model.KindError,
		Error: &model.ExtractionError{
			ExtractionError: "Failed to parse model output as JSON",
			RawResponse:     truncate(string(obj), maxRawSnippet),
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
