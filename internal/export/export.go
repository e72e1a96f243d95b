// Package export renders parsed contacts into an XLSX workbook.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"cardflow/internal/job"
)

var headers = []string{
	"Name",
	"Company",
	"Role",
	"Email",
	"Phone",
	"Confidence",
	"Status",
	"Delivery ID",
	"Created At",
	"Completed At",
}

// ContactsXLSX returns a workbook (as bytes) of every job that completed
// parsing. Jobs without a contact record are skipped.
func ContactsXLSX(jobs []job.Job, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := excelize.NewFile()
	const sheet = "Contacts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet so the workbook opens on Contacts.
	if sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	exported := 0
	for _, j := range jobs {
		if j.Contact == nil {
			continue
		}
		completed := ""
		if j.CompletedAt != nil {
			completed = j.CompletedAt.UTC().Format(time.RFC3339)
		}
		values := []any{
			j.Contact.Name,
			j.Contact.Company,
			j.Contact.Role,
			j.Contact.Email,
			j.Contact.Phone,
			j.Contact.Confidence,
			string(j.Status),
			j.DeliveryID,
			j.CreatedAt.UTC().Format(time.RFC3339),
			completed,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
		exported++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	logger.Info("contacts exported", "count", exported)
	return buf.Bytes(), nil
}
