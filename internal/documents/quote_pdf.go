package documents

import (
	"bytes"
	"fmt"
	"time"

	"chauffeur/internal/models"

	"github.com/phpdave11/gofpdf"
)

// Quote is everything printed on a price quote.
type Quote struct {
	CompanyName string
	Trip        models.TripRequest
	Vehicle     models.VehicleClass
	Estimate    models.PriceEstimate
	IssuedAt    time.Time
	ValidFor    time.Duration
}

// QuotePDF renders a single-page A4 quote.
func QuotePDF(q Quote) ([]byte, error) {
	if q.CompanyName == "" {
		q.CompanyName = "Chauffeur"
	}
	if q.IssuedAt.IsZero() {
		q.IssuedAt = time.Now()
	}
	if q.ValidFor <= 0 {
		q.ValidFor = 7 * 24 * time.Hour
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	// core fonts are cp1252, accents need translation
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle("Devis "+q.CompanyName, true)
	pdf.SetCreator(q.CompanyName, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(q.CompanyName))
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr("Estimation tarifaire"))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, tr("Émis le : "+q.IssuedAt.Format("02/01/2006 15:04")))
	pdf.Ln(6)
	pdf.Cell(0, 6, tr("Valable jusqu'au : "+q.IssuedAt.Add(q.ValidFor).Format("02/01/2006")))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, tr("Trajet"))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)

	row := func(label, value string) {
		pdf.CellFormat(45, 7, tr(label), "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 7, tr(value), "", "L", false)
	}

	row("Prestation", modeLabel(q.Estimate.Mode))
	row("Départ", safe(q.Trip.Departure, "-"))
	if q.Estimate.Mode != models.ModeDisposition {
		row("Arrivée", safe(q.Trip.Arrival, "-"))
	}
	row("Véhicule", vehicleLabel(q.Vehicle, q.Estimate.VehicleClass))
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, tr("Détail"))
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)

	est := q.Estimate
	switch {
	case est.IsAirportTransfer:
		row("Forfait aéroport", safe(est.Airport, "-"))
	case est.Mode == models.ModeDisposition:
		row("Mise à disposition", fmt.Sprintf("%d h", est.Hours))
	default:
		row("Prise en charge", formatPrice(est.BasePrice, est.Currency))
		row("Distance estimée", fmt.Sprintf("%.1f km", est.DistanceKm))
		row("Supplément", formatPrice(est.Supplement, est.Currency))
	}
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(45, 9, tr("Total"), "T", 0, "L", false, 0, "")
	pdf.CellFormat(0, 9, tr(formatPrice(est.Total, est.Currency)), "T", 1, "R", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, tr("Estimation indicative, non contractuelle. Le prix définitif est confirmé "+
		"par notre équipe lors de la réservation."), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render quote pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func modeLabel(mode models.TripMode) string {
	if mode == models.ModeDisposition {
		return "Mise à disposition"
	}
	return "Transfert"
}

func vehicleLabel(v models.VehicleClass, fallback string) string {
	if v.Name == "" {
		return safe(fallback, "-")
	}
	if v.Model == "" {
		return v.Name
	}
	return v.Name + " (" + v.Model + ")"
}

func formatPrice(amount float64, currency string) string {
	if currency == models.CurrencyEUR || currency == "" {
		return fmt.Sprintf("%.2f €", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

func safe(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
