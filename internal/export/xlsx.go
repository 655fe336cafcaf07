package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/late7/ai-doc-reader/internal/model"
)

// notFound fills cells for figures the response did not mention. A missing
// key is not a schema mismatch; it renders the same as a null value.
const notFound = "Not found"

// WriteXLSX writes the result as a spreadsheet. Row and column layout depends
// on the result variant; figures keeps the originating registry snapshot's
// order and display names.
func WriteXLSX(w io.Writer, result model.Result, figures []model.Figure) error {
	f := xlsx.NewFile()

	var err error
	switch result.Kind {
	case model.KindSinglePeriod:
		err = writeSinglePeriodSheet(f, result.SinglePeriod, figures)
	case model.KindTimeSeries:
		err = writeTimeSeriesSheet(f, result.TimeSeries, figures)
	case model.KindComprehensive:
		err = writeComprehensiveSheet(f, result.Comprehensive)
	default:
		err = writeErrorSheet(f, result.Error)
	}
	if err != nil {
		return err
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func writeSinglePeriodSheet(f *xlsx.File, res *model.SinglePeriodResult, figures []model.Figure) error {
	sheet, err := f.AddSheet("Financial Data")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, "Company", res.CompanyName)
	addRow(sheet, "Report Period", res.ReportPeriod)
	addRow(sheet, "Currency", res.Currency)
	sheet.AddRow()
	addRow(sheet, "Metric", "Value", "Currency", "Period")

	seen := make(map[string]bool, len(figures))
	for _, fig := range figures {
		seen[fig.ID] = true
		v, ok := res.FinancialData[fig.ID]
		if !ok {
			addRow(sheet, fig.Name, notFound, "", "")
			continue
		}
		addRow(sheet, fig.Name, valueCell(v.Value), v.Currency, v.Period)
	}

	// Stray keys the model returned beyond the registry are appended,
	// labeled by their JSON key.
	for _, id := range sortedKeys(res.FinancialData) {
		if seen[id] {
			continue
		}
		v := res.FinancialData[id]
		addRow(sheet, id, valueCell(v.Value), v.Currency, v.Period)
	}

	return nil
}

func writeTimeSeriesSheet(f *xlsx.File, res *model.TimeSeriesResult, figures []model.Figure) error {
	sheet, err := f.AddSheet("Time Series")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, "Company", res.CompanyName)
	addRow(sheet, "Currency", res.Currency)
	sheet.AddRow()

	years := collectYears(res)

	header := []string{"Metric"}
	for _, y := range years {
		header = append(header, y, y+" Note")
	}
	addRow(sheet, header...)

	writeEntry := func(name string, entry model.SeriesEntry) {
		cells := []string{name}
		for _, y := range years {
			yv, ok := entry.Years[y]
			if !ok {
				cells = append(cells, notFound, "")
				continue
			}
			cells = append(cells, valueCell(yv.Value), yv.Note)
		}
		addRow(sheet, cells...)
	}

	seen := make(map[string]bool, len(figures))
	for _, fig := range figures {
		seen[fig.ID] = true
		entry, ok := res.FinancialData[fig.ID]
		if !ok {
			cells := []string{fig.Name}
			for range years {
				cells = append(cells, notFound, "")
			}
			addRow(sheet, cells...)
			continue
		}
		writeEntry(fig.Name, entry)
	}

	for _, id := range sortedKeys(res.FinancialData) {
		if seen[id] {
			continue
		}
		writeEntry(id, res.FinancialData[id])
	}

	return nil
}

func writeComprehensiveSheet(f *xlsx.File, res *model.ComprehensiveResult) error {
	sheet, err := f.AddSheet("Extracted Metrics")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, "Company", res.CompanyName)
	addRow(sheet, "Currency", res.Currency)
	sheet.AddRow()
	addRow(sheet, "Metric", "Value", "Currency", "Period", "Category", "Context")

	for _, item := range res.ExtractedData {
		addRow(sheet, item.MetricName, valueCell(item.Value), item.Currency, item.Period, item.Category, item.Context)
	}

	return nil
}

func writeErrorSheet(f *xlsx.File, e *model.ExtractionError) error {
	sheet, err := f.AddSheet("Extraction Error")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	addRow(sheet, "Error", e.ExtractionError)
	addRow(sheet, "Raw response", e.RawResponse)
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().Value = c
	}
}

func valueCell(v *float64) string {
	if v == nil {
		return notFound
	}
	return fmt.Sprintf("%.0f", *v)
}

// collectYears returns the sorted union of year labels across all entries.
func collectYears(res *model.TimeSeriesResult) []string {
	set := make(map[string]bool)
	for _, entry := range res.FinancialData {
		for y := range entry.Years {
			set[y] = true
		}
	}
	years := make([]string, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Strings(years)
	return years
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
