package cmd

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	forecastFilePrefix = "BOM_EO_Forecast"
	parquetFolderName  = "BOM EO Forecast Parquet"
	forecastSheetName  = "DATA"
)

// Snapshot names the files of one forecast download.
type Snapshot struct {
	Date time.Time
}

// Label is the validity date as used in file names, e.g. 01_MAR_24.
func (s Snapshot) Label() string {
	return strings.ToUpper(s.Date.Format("02_Jan_06"))
}

// Cycle is the month the snapshot forecasts: the month after the validity date.
func (s Snapshot) Cycle() string {
	first := time.Date(s.Date.Year(), s.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, 0).Format("January")
}

// FolderName is the top-level output folder of the snapshot.
func (s Snapshot) FolderName() string {
	return fmt.Sprintf("BOM EO Forecast Snapshot on %s for %s Forecast Cycle", s.Label(), s.Cycle())
}

// FilePrefix prefixes the per-group spreadsheet names.
func (s Snapshot) FilePrefix() string {
	return fmt.Sprintf("%s_%s", forecastFilePrefix, s.Label())
}

// ChunkName names the i-th parquet chunk.
func (s Snapshot) ChunkName(i int) string {
	return fmt.Sprintf("%s_%s-%d.parquet", forecastFilePrefix, s.Label(), i)
}

// PathTemplate provides functionality to generate S3 paths from templates
type PathTemplate struct {
	template string
}

// NewPathTemplate creates a new PathTemplate instance
func NewPathTemplate(template string) *PathTemplate {
	return &PathTemplate{template: template}
}

var placeholderPattern = regexp.MustCompile(`\{[^}]*\}`)

var knownPlaceholders = map[string]bool{
	"{validity_date}":  true,
	"{forecast_cycle}": true,
	"{YYYY}":           true,
	"{MM}":             true,
	"{DD}":             true,
}

func isValidPathTemplate(template string) bool {
	for _, p := range placeholderPattern.FindAllString(template, -1) {
		if !knownPlaceholders[p] {
			return false
		}
	}
	return true
}

// Generate replaces placeholders in the template with actual values
// Supports: {validity_date}, {forecast_cycle}, {YYYY}, {MM}, {DD}
func (pt *PathTemplate) Generate(s Snapshot) string {
	result := pt.template

	result = strings.ReplaceAll(result, "{validity_date}", s.Label())
	result = strings.ReplaceAll(result, "{forecast_cycle}", s.Cycle())

	result = strings.ReplaceAll(result, "{YYYY}", s.Date.Format("2006"))
	result = strings.ReplaceAll(result, "{MM}", s.Date.Format("01"))
	result = strings.ReplaceAll(result, "{DD}", s.Date.Format("02"))

	return strings.Trim(result, "/")
}
