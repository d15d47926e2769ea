package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chauffeur/internal/domain"
	"chauffeur/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramService posts submissions to the office chats.
type TelegramService struct {
	bot     domain.TelegramSender
	chatIDs []int64
}

func NewTelegramService(bot domain.TelegramSender, chatIDs []int64) *TelegramService {
	return &TelegramService{
		bot:     bot,
		chatIDs: chatIDs,
	}
}

// NewTelegramBot connects to the Bot API with the given token.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (s *TelegramService) Name() string {
	return "telegram"
}

func (s *TelegramService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	msg.DisableWebPagePreview = true
	return s.bot.Send(msg)
}

// Deliver sends the submission summary to every configured chat.
func (s *TelegramService) Deliver(_ context.Context, submission *models.Submission) error {
	if len(s.chatIDs) == 0 {
		return errors.New("telegram: no chat configured")
	}

	text := FormatSubmission(submission)
	var errs []error
	for _, chatID := range s.chatIDs {
		if _, err := s.SendMarkdown(chatID, text); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// FormatSubmission renders a submission as a Markdown message.
func FormatSubmission(submission *models.Submission) string {
	req := submission.Request
	est := submission.Estimate
	esc := func(s string) string { return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s) }

	kind := "Demande de devis"
	if submission.Form == models.FormBooking {
		kind = "Réservation"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* `%s`\n\n", kind, submission.Reference)
	fmt.Fprintf(&b, "*Service:* %s\n", esc(string(req.ServiceType)))
	fmt.Fprintf(&b, "*Départ:* %s\n", esc(req.Departure))
	if req.Arrival != "" {
		fmt.Fprintf(&b, "*Arrivée:* %s\n", esc(req.Arrival))
	}
	when := req.Date
	if req.Time != "" {
		when += " " + req.Time
	}
	fmt.Fprintf(&b, "*Date:* %s\n", esc(when))
	if req.Passengers > 0 {
		fmt.Fprintf(&b, "*Passagers:* %d, bagages: %d\n", req.Passengers, req.Luggage)
	}
	if req.FlightNumber != "" {
		fmt.Fprintf(&b, "*Vol/train:* %s\n", esc(req.FlightNumber))
	}
	fmt.Fprintf(&b, "*Véhicule:* %s\n", esc(est.VehicleClass))
	fmt.Fprintf(&b, "*Estimation:* %.0f %s", est.Total, est.Currency)
	if est.IsAirportTransfer {
		fmt.Fprintf(&b, " (forfait %s)", esc(est.Airport))
	}
	b.WriteString("\n\n")

	c := req.Contact
	fmt.Fprintf(&b, "*Client:* %s\n", esc(c.FullName()))
	if c.Company != "" {
		fmt.Fprintf(&b, "*Société:* %s\n", esc(c.Company))
	}
	fmt.Fprintf(&b, "*Email:* %s\n", esc(c.Email))
	fmt.Fprintf(&b, "*Téléphone:* %s\n", esc(c.Phone))
	if req.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", esc(req.Message))
	}
	return b.String()
}
