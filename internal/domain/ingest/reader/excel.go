package reader

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// parseXLSX reads the first sheet of a modern Excel workbook.
func parseXLSX(filename string, data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &UnreadableFileError{Filename: filename, Reason: fmt.Sprintf("corrupt xlsx: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &UnreadableFileError{Filename: filename, Reason: "workbook has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &UnreadableFileError{Filename: filename, Reason: fmt.Sprintf("cannot read sheet %s: %v", sheets[0], err)}
	}
	return tableFromRows(filename, rows)
}
