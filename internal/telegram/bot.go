package telegram

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nutrition-resolver/internal/app"
	"nutrition-resolver/internal/config"
	"nutrition-resolver/internal/metrics"
	"nutrition-resolver/internal/nutrition"
	"nutrition-resolver/internal/shared"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "🍽 Send me what you ate, e.g. _2 eggs and toast_ or _large fries from McDonald's_, and I'll reply with calories and macros."

// TextResolver resolves free text into nutrition facts.
type TextResolver interface {
	ResolveText(ctx context.Context, text string) (*app.Response, error)
}

// MetricsReporter provides the data behind the /metrics command.
type MetricsReporter interface {
	GetDailyUsage(days int) ([]metrics.DailyUsage, error)
	GetSourceBreakdown(days int) ([]metrics.SourceCount, error)
}

// Bot wraps the Telegram API and the resolution pipeline.
type Bot struct {
	api          *tgbotapi.BotAPI
	resolver     TextResolver
	metricsStore MetricsReporter
	cfg          *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, resolver TextResolver, metricsStore MetricsReporter) (*Bot, error) {
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return &Bot{
		api:          bot,
		resolver:     resolver,
		metricsStore: metricsStore,
		cfg:          cfg,
	}, nil
}

// RegisterHandlers registers the webhook and health handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Printf("Error parsing update: %v", err)
		return
	}

	if update.Message == nil || update.Message.From == nil {
		return
	}

	if !isAllowed(b.cfg.TelegramAllowedUserIDs, update.Message.From.ID) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", update.Message.From.ID, update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func isAllowed(allowed []int64, userID int64) bool {
	for _, id := range allowed {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	switch strings.TrimSpace(msg.Text) {
	case "":
		return
	case "/start", "/help":
		b.sendMarkdown(msg.Chat.ID, helpText)
		return
	case "/metrics":
		b.handleMetricsRequest(msg)
		return
	}

	b.handleNutritionRequest(msg)
}

func (b *Bot) handleMetricsRequest(msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.sendMarkdown(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}

	usage, err := b.metricsStore.GetDailyUsage(7)
	if err != nil {
		log.Printf("Error fetching usage metrics: %v", err)
		b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error fetching metrics."))
		return
	}
	breakdown, err := b.metricsStore.GetSourceBreakdown(7)
	if err != nil {
		log.Printf("Error fetching source breakdown: %v", err)
		b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error fetching metrics."))
		return
	}

	b.sendMarkdown(msg.Chat.ID, formatMetricsMarkdown(usage, breakdown, metrics.GetSysHealth(b.cfg.DatabasePath)))
}

func (b *Bot) handleNutritionRequest(msg *tgbotapi.Message) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, "🔎 *Looking that up...*")
	reply.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.api.Send(reply)
	if err != nil {
		log.Printf("Failed to send initial reply: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = shared.WithRequestID(ctx, fmt.Sprintf("tg-%d-%d", msg.Chat.ID, msg.MessageID))

	var text string
	resp, err := b.resolver.ResolveText(ctx, msg.Text)
	if err != nil {
		log.Printf("Error resolving nutrition: %v", err)
		safeErr := strings.ReplaceAll(err.Error(), "`", "'")
		text = fmt.Sprintf("❌ *Error looking up nutrition:*\n```\n%v\n```", safeErr)
	} else {
		text = formatResolutionMarkdown(resp)
	}

	edit := tgbotapi.NewEditMessageText(msg.Chat.ID, sent.MessageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	b.api.Send(edit)

	if resp != nil && resp.Sources[nutrition.SourceError] > 0 {
		b.sendAdminAlert(fmt.Sprintf("⚠️ *Resolution errors*\nRequest: `%s`\nFailed items: %d of %d", resp.RequestID, resp.Sources[nutrition.SourceError], len(resp.Items)))
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("Failed to send message: %v", err)
	}
}

func (b *Bot) sendAdminAlert(text string) {
	if b.cfg.AdminTelegramID == 0 {
		return
	}
	b.sendMarkdown(b.cfg.AdminTelegramID, text)
}

var sourceLabels = map[nutrition.Source]string{
	nutrition.SourceDatabase:           "USDA",
	nutrition.SourceDatabaseEstimated:  "USDA, estimated portion",
	nutrition.SourceEstimator:          "estimate",
	nutrition.SourceEstimatorWebSearch: "web search",
	nutrition.SourceError:              "not found",
}

func formatResolutionMarkdown(resp *app.Response) string {
	if len(resp.Items) == 0 {
		return "🤷 I couldn't find any food in that message."
	}

	var sb strings.Builder
	sb.WriteString("🍽 *Nutrition Breakdown*\n\n")

	// Legacy Markdown has no escapes inside entities, so user-derived text
	// stays outside bold and italic markers.
	for _, item := range resp.Items {
		sb.WriteString(fmt.Sprintf("• %s %s", formatNumber(item.Quantity), escapeMarkdown(item.Name)))
		if item.Source == nutrition.SourceError {
			sb.WriteString(": ⚠️ couldn't resolve\n")
			continue
		}
		n := item.Nutrients
		sb.WriteString(fmt.Sprintf(": *%s kcal*\n", formatNumber(n.Calories)))
		sb.WriteString(fmt.Sprintf("   P %sg · C %sg · F %sg\n", formatNumber(n.Protein), formatNumber(n.Carbs), formatNumber(n.Fat)))

		detail := "   _" + sourceLabels[item.Source] + "_"
		if item.MatchedDescription != "" {
			detail += " · " + escapeMarkdown(item.MatchedDescription)
		}
		if item.MatchedPortion != "" {
			detail += " · " + escapeMarkdown(item.MatchedPortion)
		}
		sb.WriteString(detail + "\n")
	}

	t := resp.Totals
	sb.WriteString(fmt.Sprintf("\n🔢 *Total*: %s kcal | P %sg · C %sg · F %sg",
		formatNumber(t.Calories), formatNumber(t.Protein), formatNumber(t.Carbs), formatNumber(t.Fat)))
	return sb.String()
}

func formatMetricsMarkdown(usage []metrics.DailyUsage, breakdown []metrics.SourceCount, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent LLM Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d tokens (%d execs)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution))
	}

	sb.WriteString("\n🥗 *Resolution Sources (7d)*\n")
	if len(breakdown) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, s := range breakdown {
		sb.WriteString(fmt.Sprintf("• %s: %d items (avg %dms)\n", escapeMarkdown(string(s.Source)), s.Count, s.AvgLatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s\n", health.DataDiskSize))
	return sb.String()
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', 1, 64)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
