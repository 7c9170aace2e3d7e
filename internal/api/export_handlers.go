package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"streamqueue/internal/models"
)

// handleExport renders the shop's full entry history as an xlsx download.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	shopID := strings.TrimSpace(r.URL.Query().Get("shop_id"))
	if shopID == "" {
		writeError(w, http.StatusBadRequest, "shop_id is required")
		return
	}

	shop, err := s.registry.Get(r.Context(), shopID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	entries, err := s.db.ListEntries(r.Context(), shopID)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	f, err := buildExportWorkbook(shop, entries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	fileName := fmt.Sprintf("queue_%s_%s.xlsx", shop.Name, time.Now().Format("2006-01-02_15-04-05"))
	s.keepExportCopy(f, fileName)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, fileName))

	if err := f.Write(w); err != nil {
		s.logger.Error().Err(err).Str("shop_id", shopID).Msg("export write failed")
	}
}

// keepExportCopy stores the workbook on disk next to earlier exports. Best
// effort; the download proceeds either way.
func (s *HTTPServer) keepExportCopy(f *excelize.File, fileName string) {
	if s.cfg.Exports.Path == "" {
		return
	}
	if err := os.MkdirAll(s.cfg.Exports.Path, 0o755); err != nil {
		s.logger.Warn().Err(err).Msg("create export directory")
		return
	}
	filePath := filepath.Join(s.cfg.Exports.Path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		s.logger.Warn().Err(err).Str("file_path", filePath).Msg("save export copy")
		return
	}
	s.logger.Info().Str("file_path", filePath).Msg("Excel file created")
}

func buildExportWorkbook(shop *models.Shop, entries []models.QueueEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	sheetName := "Queue"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s — queue history", shop.DisplayName))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.MergeCell(sheetName, "A1", "F1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headers := []string{"ID", "First Name", "Order Number", "Status", "Created At", "Updated At"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, entry := range entries {
		row := i + 3
		orderNumber := ""
		if entry.OrderNumber != nil {
			orderNumber = *entry.OrderNumber
		}
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), entry.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), entry.FirstName)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), orderNumber)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), entry.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), entry.CreatedAt.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), entry.UpdatedAt.Format("02.01.2006 15:04"))
	}

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", "B", 25)
	_ = f.SetColWidth(sheetName, "C", "C", 15)
	_ = f.SetColWidth(sheetName, "D", "D", 12)
	_ = f.SetColWidth(sheetName, "E", "F", 20)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}
