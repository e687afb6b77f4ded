package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

// ExportFormat represents different export formats
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatJSON ExportFormat = "json"
)

// ExportConfig holds configuration for data export
type ExportConfig struct {
	Format     ExportFormat
	FilePath   string
	DateFormat string
	Delimiter  rune
}

// DataExporter writes users and request logs to files
type DataExporter struct {
	config ExportConfig
}

// table is the format-independent form of an export
type table struct {
	sheet   string
	columns []string
	widths  []float64
	rows    [][]string
	records interface{}
}

// NewDataExporter creates a new data exporter
func NewDataExporter(config ExportConfig) *DataExporter {
	if config.DateFormat == "" {
		config.DateFormat = "2006-01-02 15:04:05"
	}
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	if config.Format == "" {
		config.Format = FormatFromPath(config.FilePath)
	}

	return &DataExporter{
		config: config,
	}
}

// FormatFromPath guesses the format from the file extension, defaulting to CSV
func FormatFromPath(path string) ExportFormat {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "xlsx":
		return FormatXLSX
	case "json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// ExportUsers exports registered users
func (de *DataExporter) ExportUsers(users []*models.User) error {
	t := table{
		sheet:   "Users",
		columns: []string{"User ID", "Username", "First Name", "Last Name", "Joined At"},
		widths:  []float64{15, 25, 20, 20, 22},
		records: users,
	}
	for _, u := range users {
		t.rows = append(t.rows, []string{
			strconv.FormatInt(int64(u.UserID), 10),
			u.Username,
			u.FirstName,
			u.LastName,
			u.JoinedAt.Format(de.config.DateFormat),
		})
	}
	return de.write(t)
}

// ExportRequests exports request log entries
func (de *DataExporter) ExportRequests(entries []*models.RequestLog) error {
	t := table{
		sheet:   "Requests",
		columns: []string{"ID", "User ID", "URL", "Platform", "Kind", "State", "Failure", "Detail", "Media Kind", "File Size", "Duration (ms)", "Created At"},
		widths:  []float64{38, 15, 60, 12, 12, 12, 22, 40, 12, 12, 14, 22},
		records: entries,
	}
	for _, e := range entries {
		size := ""
		if e.FileSize > 0 {
			size = utils.FormatBytes(e.FileSize)
		}
		t.rows = append(t.rows, []string{
			e.ID,
			strconv.FormatInt(int64(e.UserID), 10),
			e.URL,
			string(e.Platform),
			string(e.Kind),
			string(e.State),
			string(e.FailureKind),
			e.Detail,
			string(e.MediaKind),
			size,
			strconv.FormatInt(e.DurationMs, 10),
			e.CreatedAt.Format(de.config.DateFormat),
		})
	}
	return de.write(t)
}

func (de *DataExporter) write(t table) error {
	if err := ValidateConfig(de.config); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(de.config.FilePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	switch de.config.Format {
	case FormatCSV:
		return de.exportToCSV(t)
	case FormatXLSX:
		return de.exportToXLSX(t)
	case FormatJSON:
		return de.exportToJSON(t)
	default:
		return fmt.Errorf("unsupported export format: %s", de.config.Format)
	}
}

// exportToCSV exports data to CSV format
func (de *DataExporter) exportToCSV(t table) error {
	file, err := os.Create(de.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = de.config.Delimiter

	if err := writer.Write(t.columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// exportToXLSX exports data to Excel format
func (de *DataExporter) exportToXLSX(t table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", t.sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
			Size: 12,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6E6FA"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, column := range t.columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(t.sheet, cell, column)
		f.SetCellStyle(t.sheet, cell, cell, headerStyle)

		if i < len(t.widths) {
			col, _ := excelize.ColumnNumberToName(i + 1)
			f.SetColWidth(t.sheet, col, col, t.widths[i])
		}
	}

	for i, row := range t.rows {
		for j, value := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(t.sheet, cell, value)
		}
	}

	endCell, _ := excelize.CoordinatesToCellName(len(t.columns), len(t.rows)+1)
	f.AutoFilter(t.sheet, "A1:"+endCell, []excelize.AutoFilterOptions{})

	f.SetPanes(t.sheet, &excelize.Panes{
		Freeze: true,
		YSplit: 1,
	})

	if err := f.SaveAs(de.config.FilePath); err != nil {
		return fmt.Errorf("failed to save XLSX file: %w", err)
	}

	return nil
}

// exportToJSON exports the raw records
func (de *DataExporter) exportToJSON(t table) error {
	exportData := struct {
		ExportedAt time.Time   `json:"exported_at"`
		Count      int         `json:"count"`
		Records    interface{} `json:"records"`
	}{
		ExportedAt: time.Now(),
		Count:      len(t.rows),
		Records:    t.records,
	}

	data, err := json.MarshalIndent(exportData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(de.config.FilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}

	return nil
}

// GetSupportedFormats returns list of supported export formats
func GetSupportedFormats() []ExportFormat {
	return []ExportFormat{FormatCSV, FormatXLSX, FormatJSON}
}

// ValidateConfig validates export configuration
func ValidateConfig(config ExportConfig) error {
	if config.FilePath == "" {
		return fmt.Errorf("file path is required")
	}

	for _, format := range GetSupportedFormats() {
		if config.Format == format {
			return nil
		}
	}

	return fmt.Errorf("unsupported format: %s", config.Format)
}
