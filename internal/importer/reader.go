package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrSpreadsheet marks a spreadsheet that could not be decoded.
var ErrSpreadsheet = errors.New("read spreadsheet")

// IsSpreadsheet reports whether the file name carries a spreadsheet extension.
func IsSpreadsheet(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls")
}

// ReadFile decodes an uploaded file into rows. Spreadsheets yield the first
// sheet including its header row; anything else is read as text lines.
func ReadFile(name string, r io.Reader) ([][]string, error) {
	if IsSpreadsheet(name) {
		return readSheet(r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read text import: %w", err)
	}
	return TextRows(string(data)), nil
}

func readSheet(r io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpreadsheet, err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrSpreadsheet)
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpreadsheet, err)
	}
	return rows, nil
}
