package bot

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	coretelegram "github.com/m3rciful/funnelbot/core/telegram"
	"github.com/m3rciful/funnelbot/core/telegram/callbacks"
	"github.com/m3rciful/funnelbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/funnelbot/core/telegram/helpers"
	"github.com/m3rciful/funnelbot/internal/store"
	"github.com/m3rciful/funnelbot/internal/texts"
)

// buildRegistry wires chat updates to funnel transitions.
func (a *App) buildRegistry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Description: "Start the bonus funnel",
		Handler:     a.handleStart,
	})
	reg.RegisterCommand("/stats", commands.Command{
		Description: "Show funnel segment counts",
		AdminOnly:   true,
		Hidden:      true,
		Handler:     a.handleStats,
	})

	_ = reg.RegisterCallback(texts.CbLang, a.handleLanguage)
	_ = reg.RegisterCallback(texts.CbAgeYes, a.handleAgeYes)
	_ = reg.RegisterCallback(texts.CbRules, a.handleRules)
	_ = reg.RegisterCallback(texts.CbBack, a.handleBack)
	_ = reg.RegisterCallback(texts.CbNickEnter, a.handleNickEnter)
	_ = reg.RegisterCallback(texts.CbNickGen, a.handleNickGen)
	_ = reg.RegisterCallback(texts.CbSupport, a.handleSupport)

	reg.SetTextFallback(a.handleText)
	return reg
}

func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	payload := ""
	if msg := c.Message(); msg != nil {
		payload = strings.TrimSpace(msg.Payload)
	}
	return a.machine.Start(ctx, sender.ID, sender.FirstName, payload)
}

func (a *App) handleLanguage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	code := strings.TrimSpace(callbacks.CallbackPayload(c))
	return a.machine.LanguageChosen(ctx, c.Sender().ID, code)
}

func (a *App) handleAgeYes(c tele.Context) error {
	_ = c.Respond(&tele.CallbackResponse{Text: "✔"})
	return a.machine.AgeConfirmed(tghelpers.BuildContext(c), c.Sender().ID)
}

func (a *App) handleRules(c tele.Context) error {
	return a.machine.ShowRules(tghelpers.BuildContext(c), c.Sender().ID)
}

func (a *App) handleBack(c tele.Context) error {
	return a.machine.MainMenu(tghelpers.BuildContext(c), c.Sender().ID)
}

func (a *App) handleNickEnter(c tele.Context) error {
	return a.machine.NicknameEntryRequested(tghelpers.BuildContext(c), c.Sender().ID)
}

func (a *App) handleNickGen(c tele.Context) error {
	return a.machine.NicknameGenerated(tghelpers.BuildContext(c), c.Sender().ID)
}

func (a *App) handleSupport(c tele.Context) error {
	return a.machine.SupportRequested(tghelpers.BuildContext(c), c.Sender().ID)
}

// handleText consumes free text. Nickname capture takes priority, then
// main-menu label matching, and anything else gets the help response.
func (a *App) handleText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID
	text := c.Text()

	handled, err := a.machine.FreeText(ctx, userID, text)
	if err != nil || handled {
		return err
	}

	lang := a.machine.Language(ctx, userID)
	action, ok := texts.MatchMenu(lang, text)
	if !ok {
		return a.machine.HelpRequested(ctx, userID)
	}
	switch action {
	case texts.MenuHow:
		return a.machine.HowItWorks(ctx, userID)
	case texts.MenuClaim:
		return a.machine.RequestBonus(ctx, userID)
	case texts.MenuDeposit:
		return a.machine.DepositInfo(ctx, userID)
	case texts.MenuPayouts:
		return a.machine.PayoutsInfo(ctx, userID)
	case texts.MenuHelp:
		return a.machine.HelpRequested(ctx, userID)
	}
	return nil
}

// handleStats reports segment sizes to the admin.
func (a *App) handleStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	counts, err := a.segments.Counts(ctx)
	if err != nil {
		return tghelpers.SendText(c, "stats unavailable: "+err.Error())
	}

	var b strings.Builder
	b.WriteString("Funnel segments:\n")
	for _, stage := range store.Stages() {
		fmt.Fprintf(&b, "%s: %d\n", stage, counts[stage])
	}
	return tghelpers.SendText(c, b.String())
}
