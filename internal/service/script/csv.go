package script

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(f)
}

// readCSV reads every record, tolerating ragged rows. A UTF-8 BOM on the
// first cell is stripped so sheets exported from spreadsheet tools parse.
func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = trimBOM(records[0][0])
	}
	return records, nil
}

// LoadCSV builds a store from CSV text.
func LoadCSV(r io.Reader) (*Store, error) {
	records, err := readCSV(r)
	if err != nil {
		return nil, &LoadError{Source: "csv", Err: err}
	}
	store, err := FromRecords(records)
	if err != nil {
		return nil, &LoadError{Source: "csv", Err: err}
	}
	return store, nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
