package conceptmap

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/SanteonNL/ekaemr/models/fhir"
)

// CSVMapping represents a row in a concept mapping CSV file
type CSVMapping struct {
	SourceSystem  string
	SourceCode    string
	SourceDisplay string
	TargetSystem  string
	TargetCode    string
	TargetDisplay string
}

// columnIndices helps track CSV column positions
type columnIndices struct {
	sourceSystem  int
	sourceCode    int
	sourceDisplay int
	targetSystem  int
	targetCode    int
	targetDisplay int
}

func getColumnIndices(headers []string) columnIndices {
	return columnIndices{
		sourceSystem:  findColumn(headers, "system_source"),
		sourceCode:    findColumn(headers, "code_source"),
		sourceDisplay: findColumn(headers, "display_source"),
		targetSystem:  findColumn(headers, "system_target"),
		targetCode:    findColumn(headers, "code_target"),
		targetDisplay: findColumn(headers, "display_target"),
	}
}

func findColumn(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func (ci columnIndices) areValid() bool {
	return ci.sourceSystem != -1 &&
		ci.sourceCode != -1 &&
		ci.targetSystem != -1 &&
		ci.targetCode != -1
}

func column(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func loadCSVFile(filePath string) (*fhir.ConceptMap, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	return ParseCSV(f, name)
}

// ParseCSV converts a ';' separated mapping table into a ConceptMap with one
// group per source/target system pair. Rows without a source or target code are rejected.
func ParseCSV(reader io.Reader, name string) (*fhir.ConceptMap, error) {
	csvReader := csv.NewReader(reader)
	csvReader.Comma = ';'
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	headers, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	indices := getColumnIndices(headers)
	if !indices.areValid() {
		return nil, fmt.Errorf("required columns not found in CSV")
	}

	id := name
	status := "active"
	conceptMap := &fhir.ConceptMap{
		ResourceType: "ConceptMap",
		Id:           &id,
		Name:         &id,
		Status:       &status,
	}

	// groups keep first-seen order so translation stays deterministic
	groupIndex := make(map[string]int)
	line := 1
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		line++

		mapping := CSVMapping{
			SourceSystem:  column(row, indices.sourceSystem),
			SourceCode:    column(row, indices.sourceCode),
			SourceDisplay: column(row, indices.sourceDisplay),
			TargetSystem:  column(row, indices.targetSystem),
			TargetCode:    column(row, indices.targetCode),
			TargetDisplay: column(row, indices.targetDisplay),
		}
		if mapping.SourceCode == "" || mapping.TargetCode == "" {
			return nil, fmt.Errorf("line %d: source and target codes are required", line)
		}

		addMapping(conceptMap, groupIndex, mapping)
	}

	return conceptMap, nil
}

func addMapping(conceptMap *fhir.ConceptMap, groupIndex map[string]int, m CSVMapping) {
	groupKey := m.SourceSystem + "|" + m.TargetSystem
	i, exists := groupIndex[groupKey]
	if !exists {
		conceptMap.Group = append(conceptMap.Group, fhir.ConceptMapGroup{
			Source: stringOrNil(m.SourceSystem),
			Target: stringOrNil(m.TargetSystem),
		})
		i = len(conceptMap.Group) - 1
		groupIndex[groupKey] = i
	}

	equivalence := "equivalent"
	group := &conceptMap.Group[i]
	group.Element = append(group.Element, fhir.ConceptMapGroupElement{
		Code:    stringOrNil(m.SourceCode),
		Display: stringOrNil(m.SourceDisplay),
		Target: []fhir.ConceptMapGroupElementTarget{
			{
				Code:        stringOrNil(m.TargetCode),
				Display:     stringOrNil(m.TargetDisplay),
				Equivalence: &equivalence,
			},
		},
	})
}

func stringOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
