package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/late7/ai-doc-reader/internal/model"
)

// ReadFigureRows reads (name, description) rows from the first sheet of an
// XLSX file, skipping the header row when one is present. The rows feed the
// registry's bulk import, which does its own validation.
func ReadFigureRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open figure xlsx")
	}
	return figureRows(f)
}

// ReadFigureRowsFrom is ReadFigureRows over an in-memory upload.
func ReadFigureRowsFrom(data []byte) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "export: read figure xlsx")
	}
	return figureRows(f)
}

func figureRows(f *xlsx.File) ([][]string, error) {
	if len(f.Sheets) == 0 {
		return nil, eris.New("export: figure xlsx has no sheets")
	}

	var rows [][]string
	for i, row := range f.Sheets[0].Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, c := range row.Cells {
			cells = append(cells, c.Value)
		}
		if i == 0 && isFigureHeader(cells) {
			continue
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func isFigureHeader(cells []string) bool {
	return len(cells) > 0 && (cells[0] == "Name" || cells[0] == "name")
}

// WriteFigureXLSX writes the registry as a two-column spreadsheet that
// round-trips through ReadFigureRows.
func WriteFigureXLSX(w io.Writer, figures []model.Figure) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Figures")
	if err != nil {
		return eris.Wrap(err, "export: add figures sheet")
	}

	addRow(sheet, "Name", "Description", "ID", "Enabled", "Order")
	for _, fig := range figures {
		addRow(sheet, fig.Name, fig.Description, fig.ID, strconv.FormatBool(fig.Enabled), strconv.Itoa(fig.Order))
	}

	return eris.Wrap(f.Write(w), "export: write figures xlsx")
}
