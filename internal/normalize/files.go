package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FileRows is the parsed content of one bulk-upload file. Header is empty
// when the file carries no template header row.
type FileRows struct {
	Header []string
	Rows   [][]string
}

// ReadUploadFile parses a bulk-upload file into rows. Supported formats:
// .csv, .txt (tab/semicolon/pipe/comma delimited) and .xlsx (first sheet).
func ReadUploadFile(filename string, r io.Reader) (FileRows, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readDelimited(r, ',')
	case ".txt":
		data, err := io.ReadAll(r)
		if err != nil {
			return FileRows{}, err
		}
		return readDelimited(strings.NewReader(string(data)), detectDelimiter(string(data)))
	case ".xlsx":
		return readXLSX(r)
	default:
		return FileRows{}, fmt.Errorf("unsupported upload format: %s", filepath.Ext(filename))
	}
}

func readDelimited(r io.Reader, delimiter rune) (FileRows, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // rows are validated per-record downstream

	all, err := reader.ReadAll()
	if err != nil {
		return FileRows{}, fmt.Errorf("failed to parse delimited file: %w", err)
	}
	return splitHeader(all), nil
}

func readXLSX(r io.Reader) (FileRows, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return FileRows{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return FileRows{}, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return FileRows{}, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return splitHeader(rows), nil
}

func splitHeader(rows [][]string) FileRows {
	// Drop fully empty rows; spreadsheet exports are full of them
	filtered := rows[:0]
	for _, row := range rows {
		empty := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				empty = false
				break
			}
		}
		if !empty {
			filtered = append(filtered, row)
		}
	}

	if len(filtered) > 0 && HasHeader(filtered[0]) {
		return FileRows{Header: filtered[0], Rows: filtered[1:]}
	}
	return FileRows{Rows: filtered}
}

// detectDelimiter picks the most frequent candidate delimiter in the first
// line of a .txt upload
func detectDelimiter(data string) rune {
	firstLine, _, _ := strings.Cut(data, "\n")
	best, bestCount := ',', 0
	for _, candidate := range []rune{'\t', ';', '|', ','} {
		if n := strings.Count(firstLine, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}
