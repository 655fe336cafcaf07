package prompt

import (
	"fmt"
	"strings"

	"github.com/late7/ai-doc-reader/internal/model"
)

// The example schemas are built by hand rather than via json.Marshal so that
// figure entries keep registry order; map marshaling would sort them.

func singlePeriodSchema(figures []model.Figure) string {
	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString("  \"company_name\": \"Company Oy\",\n")
	b.WriteString("  \"report_period\": \"FY2024\",\n")
	b.WriteString("  \"currency\": \"EUR\",\n")
	b.WriteString("  \"financial_data\": {\n")
	for i, f := range figures {
		fmt.Fprintf(&b, "    %q: {\"value\": 1000000, \"currency\": \"EUR\", \"period\": \"FY2024\"}", f.ID)
		if i < len(figures)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  }\n")
	b.WriteString("}")
	return b.String()
}

func timeseriesSchema(figures []model.Figure, year int) string {
	years := YearWindow(year)

	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString("  \"analysis_type\": \"timeseries\",\n")
	b.WriteString("  \"company_name\": \"Company Oy\",\n")
	b.WriteString("  \"currency\": \"EUR\",\n")
	b.WriteString("  \"financial_data\": {\n")
	for i, f := range figures {
		fmt.Fprintf(&b, "    %q: {\n", f.ID)
		fmt.Fprintf(&b, "      \"metric_name\": %q,\n", f.Name)
		b.WriteString("      \"years\": {\n")
		for j, y := range years {
			fmt.Fprintf(&b, "        %q: {\"value\": null, \"currency\": \"EUR\", \"note\": \"\"}", y)
			if j < len(years)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString("      }\n")
		b.WriteString("    }")
		if i < len(figures)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("  }\n")
	b.WriteString("}")
	return b.String()
}

const comprehensiveSchema = `{
  "analysis_type": "comprehensive",
  "company_name": "Company Oy",
  "currency": "EUR",
  "extracted_data": [
    {"metric_name": "Revenue", "value": 1000000, "currency": "EUR", "period": "FY2024", "context": "Consolidated income statement", "category": "Revenue"}
  ]
}`

// comprehensiveTaxonomy is the fixed category list for unconstrained
// extraction. It deliberately casts a wide net across financial statements,
// SaaS KPIs and fundraising metrics.
const comprehensiveTaxonomy = `- Revenue: net sales, recurring revenue, revenue by segment, other operating income
- Costs: cost of goods sold, materials and services, personnel expenses, other operating expenses, depreciation and amortization
- Profitability: gross profit, EBITDA, EBIT, operating profit, profit before taxes, net income
- Balance sheet: total assets, total equity, cash and cash equivalents, inventory, receivables, interest-bearing debt
- Cash flow: operating cash flow, investing cash flow, financing cash flow, free cash flow, capital expenditure
- SaaS and growth KPIs: ARR, MRR, churn rate, net revenue retention, customer count, CAC, LTV, gross margin
- Fundraising: funding rounds, amounts raised, valuation, runway, burn rate
- Workforce: headcount, FTEs, average personnel during the period
- Other: dividends, taxes paid, order backlog, guidance and outlook figures stated as numbers`
