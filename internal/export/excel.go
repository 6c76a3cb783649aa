package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"sartarosh/internal/domain"
	"sartarosh/internal/models"
	"sartarosh/internal/pricing"
)

const sheetName = "Schedule"

// Exporter writes a barber's schedule range into an xlsx report: a header
// row per day with its aggregates, then one row per request.
type Exporter struct {
	repo   domain.Repository
	path   string
	logger *zerolog.Logger
}

func NewExporter(repo domain.Repository, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{repo: repo, path: path, logger: logger}
}

// ExportScheduleRange builds the report file and returns its path.
func (e *Exporter) ExportScheduleRange(ctx context.Context, barberID int64, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	barber, err := e.repo.GetBarber(ctx, barberID)
	if err != nil {
		return "", err
	}
	days, err := e.repo.GetScheduleDays(ctx, barberID, from, to)
	if err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	dayStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s: %s - %s",
		barber.Name, from.Format("02.01.2006"), to.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", "F1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	row := 3
	for _, d := range days {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, d.Day.Format("02.01.2006"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), fmt.Sprintf("clients: %d", d.NClients))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), fmt.Sprintf("income: %d", d.TotalIncome))
		endCell, _ := excelize.CoordinatesToCellName(6, row)
		_ = f.SetCellStyle(sheetName, cell, endCell, dayStyle)
		row++

		requests, err := e.repo.GetRequestsForDay(ctx, d.ID, "")
		if err != nil {
			return "", err
		}
		for _, r := range requests {
			names := ""
			for i, li := range r.Services {
				if i > 0 {
					names += ", "
				}
				names += li.Name
			}
			_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), r.ID)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row),
				fmt.Sprintf("%s - %s", r.StartTime.Format("15:04"), r.EndTime.Format("15:04")))
			_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), r.Status)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), names)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), pricing.RequestTotal(&r))
			_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), r.Comment)

			if styleID, err := e.statusStyle(f, r.Status); err == nil {
				_ = f.SetCellStyle(sheetName, fmt.Sprintf("C%d", row), fmt.Sprintf("C%d", row), styleID)
			}
			row++
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 14)
	_ = f.SetColWidth(sheetName, "B", "B", 18)
	_ = f.SetColWidth(sheetName, "C", "C", 12)
	_ = f.SetColWidth(sheetName, "D", "D", 30)
	_ = f.SetColWidth(sheetName, "E", "F", 16)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("schedule_%d_%s_to_%s.xlsx",
		barberID, from.Format("2006-01-02"), to.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("schedule report created")
	return filePath, nil
}

func (e *Exporter) statusStyle(f *excelize.File, status string) (int, error) {
	color := "#FFFFFF"
	switch status {
	case models.StatusAccepted:
		color = "#C6EFCE"
	case models.StatusPending:
		color = "#FFEB9C"
	case models.StatusDenied:
		color = "#FFC7CE"
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
}
