package bot

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"chauffeur/internal/documents"
	"chauffeur/internal/metrics"
	"chauffeur/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	cmdStart       = "start"
	cmdHelp        = "help"
	cmdEstimate    = "estimate"
	cmdDisposition = "dispo"
	cmdTariffs     = "tariffs"
	cmdDeadLetters = "deadletters"

	deadLetterListLimit = 10
)

const helpText = `Commandes :
/estimate départ ; arrivée ; classe - estimation d'un transfert
/dispo adresse ; classe - mise à disposition (3 h)
/tariffs - grille tarifaire (xlsx)
/deadletters - demandes non transmises`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	chatID := msg.Chat.ID

	var err error
	switch command {
	case cmdStart, cmdHelp:
		b.sendMessage(ctx, chatID, helpText)
	case cmdEstimate:
		err = b.handleEstimate(ctx, chatID, msg.CommandArguments(), models.ModeTransfer)
	case cmdDisposition:
		err = b.handleEstimate(ctx, chatID, msg.CommandArguments(), models.ModeDisposition)
	case cmdTariffs:
		err = b.handleTariffs(ctx, chatID)
	case cmdDeadLetters:
		err = b.handleDeadLetters(ctx, chatID)
	default:
		b.sendMessage(ctx, chatID, "Commande inconnue. /help pour la liste.")
		metrics.IncBotCommand("unknown", "ok")
		return
	}

	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("command", command).Msg("command failed")
		metrics.IncBotCommand(command, "error")
		return
	}
	metrics.IncBotCommand(command, "ok")
}

// parseTrip reads "departure ; arrival ; class" (or "address ; class" for a disposition).
func parseTrip(args string, mode models.TripMode) (models.TripRequest, error) {
	parts := strings.Split(args, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	trip := models.TripRequest{Mode: mode}
	switch mode {
	case models.ModeDisposition:
		if parts[0] == "" || len(parts) > 2 {
			return trip, fmt.Errorf("usage: /%s adresse ; classe", cmdDisposition)
		}
		trip.Departure = parts[0]
		if len(parts) == 2 {
			trip.VehicleClass = strings.ToLower(parts[1])
		}
	default:
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" || len(parts) > 3 {
			return trip, fmt.Errorf("usage: /%s départ ; arrivée ; classe", cmdEstimate)
		}
		trip.Departure, trip.Arrival = parts[0], parts[1]
		if len(parts) == 3 {
			trip.VehicleClass = strings.ToLower(parts[2])
		}
	}
	return trip, nil
}

func (b *Bot) handleEstimate(ctx context.Context, chatID int64, args string, mode models.TripMode) error {
	trip, err := parseTrip(args, mode)
	if err != nil {
		b.sendMessage(ctx, chatID, err.Error())
		return nil
	}
	if trip.VehicleClass != "" {
		if _, err := b.fleet.Get(trip.VehicleClass); err != nil {
			b.sendMessage(ctx, chatID, fmt.Sprintf("Classe inconnue. Choix : %s", strings.Join(b.fleet.IDs(), ", ")))
			return nil
		}
	}

	b.sendMessage(ctx, chatID, formatEstimate(trip, b.estimator.Estimate(ctx, trip)))
	return nil
}

func formatEstimate(trip models.TripRequest, est models.PriceEstimate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Véhicule : %s\n", est.VehicleClass)
	switch {
	case est.Mode == models.ModeDisposition:
		fmt.Fprintf(&sb, "Mise à disposition %d h depuis %s\n", est.Hours, trip.Departure)
	case est.IsAirportTransfer:
		fmt.Fprintf(&sb, "%s → %s\nForfait %s\n", trip.Departure, trip.Arrival, est.Airport)
	default:
		fmt.Fprintf(&sb, "%s → %s\n", trip.Departure, trip.Arrival)
		fmt.Fprintf(&sb, "Prise en charge %.0f + %.1f km = %.0f\n", est.BasePrice, est.DistanceKm, est.Supplement)
	}
	fmt.Fprintf(&sb, "Total : %.0f %s", est.Total, est.Currency)
	return sb.String()
}

func (b *Bot) handleTariffs(ctx context.Context, chatID int64) error {
	data, err := documents.TariffWorkbook(b.fleet.Classes(), models.DispositionHours)
	if err != nil {
		b.sendMessage(ctx, chatID, "Erreur lors de la création du fichier")
		return err
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{
		Name:   fmt.Sprintf("tarifs_%s.xlsx", b.now().Format("20060102")),
		Reader: bytes.NewReader(data),
	})
	doc.Caption = "Grille tarifaire"

	if _, err := b.tg.Send(doc); err != nil {
		b.sendMessage(ctx, chatID, "Erreur lors de l'envoi du fichier")
		return err
	}
	return nil
}

func (b *Bot) handleDeadLetters(ctx context.Context, chatID int64) error {
	if b.deadLetters == nil {
		b.sendMessage(ctx, chatID, "File de transmission indisponible.")
		return nil
	}

	tasks, err := b.deadLetters.DeadLetters(ctx)
	if err != nil {
		b.sendMessage(ctx, chatID, "Erreur lors de la lecture des demandes en échec")
		return err
	}
	if len(tasks) == 0 {
		b.sendMessage(ctx, chatID, "Aucune demande en échec ✅")
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Demandes en échec : %d\n", len(tasks))
	for i, task := range tasks {
		if i == deadLetterListLimit {
			fmt.Fprintf(&sb, "… et %d autres", len(tasks)-deadLetterListLimit)
			break
		}
		s := task.Submission
		fmt.Fprintf(&sb, "\n%s (%s) %s, %s\n%s\n",
			s.Reference, s.Form, s.Request.Contact.FullName(), s.Request.Contact.Phone, task.LastError)
	}
	b.sendMessage(ctx, chatID, sb.String())
	return nil
}
