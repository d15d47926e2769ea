package documents

import (
	"bytes"
	"fmt"

	"chauffeur/internal/models"

	"github.com/xuri/excelize/v2"
)

const TariffSheet = "Tarifs"

var tariffHeaders = []string{"Classe", "Modèle", "Passagers", "Bagages", "Prise en charge", "Prix/km", "Heure", "Forfait CDG", "Forfait Orly"}

// TariffWorkbook lists every vehicle class with its rates.
func TariffWorkbook(classes []models.VehicleClass, hours int) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(TariffSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := append([]string(nil), tariffHeaders...)
	if hours > 0 {
		headers = append(headers, fmt.Sprintf("Disposition %dh", hours))
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}
	priceStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, err
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(TariffSheet, cell, header)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(TariffSheet, "A1", lastCol+"1", headerStyle)
	_ = f.SetColWidth(TariffSheet, "A", "B", 25)
	_ = f.SetColWidth(TariffSheet, "C", lastCol, 15)

	for i, v := range classes {
		row := i + 2
		values := []interface{}{v.Name, v.Model, v.Passengers, v.Luggage, v.BasePrice, v.PerKm, v.Hourly}
		for _, code := range []string{"cdg", "orly"} {
			if fare, ok := v.Forfait(code); ok {
				values = append(values, fare)
			} else {
				values = append(values, "")
			}
		}
		if hours > 0 {
			values = append(values, v.Hourly*float64(hours))
		}

		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(TariffSheet, cell, value)
		}
		_ = f.SetCellStyle(TariffSheet, fmt.Sprintf("E%d", row), fmt.Sprintf("%s%d", lastCol, row), priceStyle)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write tariff workbook: %w", err)
	}
	return buf.Bytes(), nil
}
