// Package prompt synthesizes the structured-output contract sent to the LLM:
// a natural-language instruction block plus an example JSON schema derived
// from the figure registry.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/late7/ai-doc-reader/internal/model"
)

// Mode selects which of the three extraction-result shapes the prompt asks for.
type Mode string

const (
	ModeSinglePeriod  Mode = "single-period"
	ModeTimeSeries    Mode = "timeseries"
	ModeComprehensive Mode = "comprehensive"
)

// ParseMode validates a mode string from the API or CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSinglePeriod, ModeTimeSeries, ModeComprehensive:
		return Mode(s), nil
	case "":
		return ModeSinglePeriod, nil
	}
	return "", eris.Errorf("prompt: unknown analysis mode %q", s)
}

// ErrNoFigures is returned when a schema-driven prompt is requested with an
// empty figure list. Surfaced to the user before any network call.
var ErrNoFigures = eris.New("prompt: no figures configured")

// YearWindowSize is the number of year columns in a time-series schema.
const YearWindowSize = 8

// YearWindow returns the year labels for a time-series schema anchored at
// year: three years back through four years ahead, ascending.
func YearWindow(year int) []string {
	labels := make([]string, 0, YearWindowSize)
	for y := year - 3; y <= year+4; y++ {
		labels = append(labels, fmt.Sprintf("%d", y))
	}
	return labels
}

// Generator builds prompts. Year anchors the time-series window; it is an
// explicit field so generation stays deterministic under test.
type Generator struct {
	Year int
}

// NewGenerator returns a Generator anchored at the current wall-clock year.
func NewGenerator() Generator {
	return Generator{Year: time.Now().Year()}
}

// Request describes one prompt to generate.
type Request struct {
	Figures     []model.Figure
	Mode        Mode
	SubjectName string
	// ForDirectUpload switches the lead sentence to second-person developer
	// framing for the file-attachment backend. The schema and rules are
	// identical either way.
	ForDirectUpload bool
}

const workspaceLead = "The following documents belong to the workspace %q. Analyze all documents available in this workspace and extract the financial figures listed below."

const directUploadLead = "You are a financial analyst. Analyze the attached documents for %q and extract the financial figures listed below."

const comprehensiveWorkspaceLead = "The following documents belong to the workspace %q. Analyze all documents available in this workspace and extract every financial, business and operational metric you can find."

const comprehensiveDirectLead = "You are a financial analyst. Analyze the attached documents for %q and extract every financial, business and operational metric you can find."

// numericRules is the fixed normalization contract shared verbatim across all
// three modes.
const numericRules = `Numeric rules (apply to every value):
- Report every amount as an absolute integer in the document's stated currency. Never use decimals and never attach unit suffixes.
- Expand abbreviations: M / Mill / million means multiply by 1000000; K / k / thousand means multiply by 1000; B / billion means multiply by 1000000000.
- Watch for document-level scale disclosures such as "all figures in thousands", "(000s)" or "in millions" and apply that scale to every value taken from that document.
- Prefer consolidated figures over segment-level figures.
- When a figure cannot be found, use null as the value. Never invent a value and never use a placeholder string such as "N/A".`

// singlePeriodRules are appended only in single-period mode.
const singlePeriodRules = `- When several periods compete, prefer the most recent full annual period.
- Every figure listed above must appear in financial_data. Use null for figures the documents do not state; do not omit keys.`

// timeseriesRules are appended only in timeseries mode.
const timeseriesRules = `- Fill in a value for a year only when that year's figure is explicitly stated in a document. Use null for every other year.
- Never extrapolate or compute projected values from growth rates. A projection may be reported only when the projected number itself is stated verbatim in a document.
- Every figure listed above must appear in financial_data with all year keys present.`

// Generate produces the full prompt string for the request. Single-period and
// timeseries modes fail with ErrNoFigures on an empty figure list;
// comprehensive mode ignores the registry entirely.
func (g Generator) Generate(req Request) (string, error) {
	if req.Mode == ModeComprehensive {
		return g.generateComprehensive(req), nil
	}
	if len(req.Figures) == 0 {
		return "", ErrNoFigures
	}

	var b strings.Builder

	lead := workspaceLead
	if req.ForDirectUpload {
		lead = directUploadLead
	}
	fmt.Fprintf(&b, lead, req.SubjectName)
	b.WriteString("\n\nFigures to extract:\n")

	for _, f := range req.Figures {
		fmt.Fprintf(&b, "- %s (JSON key: %s): %s\n", f.Name, f.ID, f.Description)
	}

	b.WriteString("\n")
	b.WriteString(numericRules)
	b.WriteString("\n")
	if req.Mode == ModeTimeSeries {
		b.WriteString(timeseriesRules)
	} else {
		b.WriteString(singlePeriodRules)
	}

	b.WriteString("\n\nRespond with only a JSON object in exactly this shape, no prose before or after it:\n\n")
	if req.Mode == ModeTimeSeries {
		b.WriteString(timeseriesSchema(req.Figures, g.year()))
	} else {
		b.WriteString(singlePeriodSchema(req.Figures))
	}

	return b.String(), nil
}

func (g Generator) year() int {
	if g.Year != 0 {
		return g.Year
	}
	return time.Now().Year()
}

func (g Generator) generateComprehensive(req Request) string {
	var b strings.Builder

	lead := comprehensiveWorkspaceLead
	if req.ForDirectUpload {
		lead = comprehensiveDirectLead
	}
	fmt.Fprintf(&b, lead, req.SubjectName)

	b.WriteString("\n\nLook for metrics in all of these categories:\n")
	b.WriteString(comprehensiveTaxonomy)
	b.WriteString("\n")
	b.WriteString(numericRules)
	b.WriteString("\n\nRespond with only a JSON object in exactly this shape, no prose before or after it. extracted_data may contain any number of entries:\n\n")
	b.WriteString(comprehensiveSchema)

	return b.String()
}
