package reader

import (
	"bytes"
	"fmt"

	"github.com/shakinm/xlsReader/xls"
)

// parseXLS reads the first sheet of a legacy BIFF Excel workbook.
func parseXLS(filename string, data []byte) (*Table, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &UnreadableFileError{Filename: filename, Reason: fmt.Sprintf("corrupt xls: %v", err)}
	}

	sheet, err := wb.GetSheet(0)
	if err != nil {
		return nil, &UnreadableFileError{Filename: filename, Reason: "workbook has no sheets"}
	}

	var rows [][]string
	for _, r := range sheet.GetRows() {
		var cells []string
		for _, c := range r.GetCols() {
			cells = append(cells, c.GetString())
		}
		rows = append(rows, cells)
	}
	return tableFromRows(filename, rows)
}
