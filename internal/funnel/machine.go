// Package funnel implements the per-user conversion state machine. All
// chat events and affiliate postbacks funnel through the Machine, which
// serializes them per user and keeps the record store, the segment index
// and the follow-up scheduler consistent.
package funnel

import (
	"context"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/affiliate"
	"github.com/m3rciful/funnelbot/internal/followup"
	"github.com/m3rciful/funnelbot/internal/segment"
	"github.com/m3rciful/funnelbot/internal/store"
	"github.com/m3rciful/funnelbot/internal/texts"

	"log/slog"
)

// Follow-up keys, used for bookkeeping and logs.
const (
	FollowupLanguageDefault = "language_default"
	FollowupReminderShort   = "reminder_short"
	FollowupReminderLong    = "reminder_long"
	FollowupReactivation    = "reactivation"
)

// Gateway delivers outbound messages to a user. Delivery failures are the
// gateway's to report; the machine logs them and never rolls back a
// committed transition because of one.
type Gateway interface {
	Send(ctx context.Context, userID int64, text string, markup *tele.ReplyMarkup) error
}

// Config carries the funnel timings and limits.
type Config struct {
	LanguageTimeout   time.Duration
	ReminderShort     time.Duration
	ReminderLong      time.Duration
	ReactivationDelay time.Duration
	FallbackLanguage  string
	NicknameMaxLen    int
}

// Machine drives funnel transitions. Every transition applies its side
// effects in a fixed order: cancel pending follow-ups, mutate the record
// and rebuild the segment index, schedule new follow-ups, then send
// messages.
type Machine struct {
	store     store.Store
	segments  segment.Index
	followups followup.Scheduler
	gateway   Gateway
	links     *affiliate.Links
	cfg       Config
	locks     *userLocks
}

// New constructs the machine.
func New(st store.Store, idx segment.Index, sched followup.Scheduler, gw Gateway, links *affiliate.Links, cfg Config) *Machine {
	if cfg.FallbackLanguage == "" {
		cfg.FallbackLanguage = texts.Fallback
	}
	if cfg.NicknameMaxLen <= 0 {
		cfg.NicknameMaxLen = 32
	}
	return &Machine{
		store:     st,
		segments:  idx,
		followups: sched,
		gateway:   gw,
		links:     links,
		cfg:       cfg,
		locks:     newUserLocks(),
	}
}

// Start handles /start. It creates the record on first contact, captures
// the acquisition payload, clears any pending follow-ups and restarts the
// language step. Re-entry never loses funnel progress.
func (m *Machine) Start(ctx context.Context, userID int64, firstName, payload string) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	rec, created, err := m.store.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	m.followups.CancelAll(userID)

	rec, err = m.store.Update(ctx, userID, func(r *store.Record) {
		r.FirstName = firstName
		if r.Payload == "" {
			r.Payload = payload
		}
		r.AwaitingNickname = false
	})
	if err != nil {
		return err
	}
	if err := m.segments.Rebuild(ctx, userID, rec.Stage); err != nil {
		return err
	}

	m.scheduleLanguageDefault(userID)

	logger.FUNNEL.Info("funnel started",
		slog.String("event", "funnel.start"),
		slog.Int64("uid", userID),
		slog.String("stage", string(rec.Stage)),
		slog.Bool("created", created),
	)

	m.send(ctx, userID, texts.LanguagePrompt(), texts.LanguageKeyboard())
	return nil
}

// LanguageChosen records the picked language. The first selection moves
// the user on to the age gate; a later selection only switches the
// language, so a pick racing the auto-default never duplicates the gate.
func (m *Machine) LanguageChosen(ctx context.Context, userID int64, code string) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	prev, _, err := m.store.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	resolved := texts.Resolve(code)
	rec, err := m.store.Update(ctx, userID, func(r *store.Record) {
		r.Language = resolved
	})
	if err != nil {
		return err
	}
	if err := m.segments.Rebuild(ctx, userID, rec.Stage); err != nil {
		return err
	}

	switch {
	case rec.AgeConfirmed:
		m.send(ctx, userID, texts.Greeting(rec.Language, rec.FirstName), texts.MainMenuKeyboard(rec.Language))
	case prev.Language == "":
		m.send(ctx, userID, texts.AgeGate(rec.Language), texts.AgeKeyboard(rec.Language))
	default:
		// Language already set, either by an earlier pick or the
		// auto-default. Switch it without repeating the age gate.
	}
	return nil
}

// AgeConfirmed marks the 18+ confirmation and opens the main menu. The
// flag is monotonic, confirming again just reopens the menu.
func (m *Machine) AgeConfirmed(ctx context.Context, userID int64) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	if _, _, err := m.store.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	rec, err := m.store.Update(ctx, userID, func(r *store.Record) {
		r.AgeConfirmed = true
	})
	if err != nil {
		return err
	}
	if err := m.segments.Rebuild(ctx, userID, rec.Stage); err != nil {
		return err
	}

	lang := m.langOf(rec)
	m.send(ctx, userID, texts.Greeting(lang, rec.FirstName), texts.MainMenuKeyboard(lang))
	return nil
}

// ShowRules sends the rules text without changing state.
func (m *Machine) ShowRules(ctx context.Context, userID int64) error {
	lang := m.Language(ctx, userID)
	m.send(ctx, userID, texts.Rules(lang), nil)
	return nil
}

// MainMenu re-sends the greeting with the main menu keyboard.
func (m *Machine) MainMenu(ctx context.Context, userID int64) error {
	rec, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	lang := m.langOf(rec)
	m.send(ctx, userID, texts.Greeting(lang, rec.FirstName), texts.MainMenuKeyboard(lang))
	return nil
}

// RequestBonus starts the nickname step, or re-sends the age gate when
// the user has not confirmed 18+ yet.
func (m *Machine) RequestBonus(ctx context.Context, userID int64) error {
	rec, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	lang := texts.Fallback
	if ok {
		lang = m.langOf(rec)
	}
	if !ok || !rec.AgeConfirmed {
		m.send(ctx, userID, texts.AgeGate(lang), texts.AgeKeyboard(lang))
		return nil
	}
	m.send(ctx, userID, texts.AskNickname(lang), texts.NicknameKeyboard(lang))
	return nil
}

// NicknameEntryRequested arms free-text capture for the next message.
func (m *Machine) NicknameEntryRequested(ctx context.Context, userID int64) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	if _, _, err := m.store.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	rec, err := m.store.Update(ctx, userID, func(r *store.Record) {
		r.AwaitingNickname = true
	})
	if err != nil {
		return err
	}
	if err := m.segments.Rebuild(ctx, userID, rec.Stage); err != nil {
		return err
	}
	m.send(ctx, userID, texts.AskNickname(m.langOf(rec)), nil)
	return nil
}

// NicknameGenerated assigns a generated nickname and hands out the
// registration link.
func (m *Machine) NicknameGenerated(ctx context.Context, userID int64) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	if _, _, err := m.store.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return m.completeNickname(ctx, userID, generateNickname())
}

// FreeText consumes a plain text message. It reports whether the message
// was captured as a nickname; unhandled messages fall through to menu
// matching in the router.
func (m *Machine) FreeText(ctx context.Context, userID int64, text string) (bool, error) {
	unlock := m.locks.lock(userID)
	defer unlock()

	rec, _, err := m.store.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	if !rec.AwaitingNickname {
		return false, nil
	}
	nick := sanitizeNickname(text, m.cfg.NicknameMaxLen)
	if err := m.completeNickname(ctx, userID, nick); err != nil {
		return true, err
	}
	return true, nil
}

// completeNickname stores the nickname, advances the stage and schedules
// the registration reminders. Caller must hold the user lock.
func (m *Machine) completeNickname(ctx context.Context, userID int64, nick string) error {
	prev, _, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}

	m.followups.CancelAll(userID)

	rec, err := m.store.Update(ctx, userID, func(r *store.Record) {
		r.Nickname = nick
		r.AwaitingNickname = false
		r.Stage = store.StageClickedRegister
	})
	if err != nil {
		return err
	}
	if err := m.segments.Rebuild(ctx, userID, store.StageClickedRegister); err != nil {
		return err
	}

	lang := m.langOf(rec)
	m.scheduleStageFollowup(userID, FollowupReminderShort, m.cfg.ReminderShort, store.StageClickedRegister, texts.ReminderShort)
	m.scheduleStageFollowup(userID, FollowupReminderLong, m.cfg.ReminderLong, store.StageClickedRegister, texts.ReminderLong)

	m.logTransition(userID, prev.Stage, store.StageClickedRegister)

	m.send(ctx, userID, texts.NicknameSaved(lang, nick), nil)
	regURL := m.links.Register(userID, rec.Payload, lang)
	m.send(ctx, userID, texts.RegisterIntro(lang), texts.RegisterKeyboard(lang, regURL))
	return nil
}

// Registered applies a registration postback. Unknown users are a no-op.
// Duplicate postbacks re-run the transition; CancelAll keeps the pending
// follow-up set from growing.
func (m *Machine) Registered(ctx context.Context, userID int64) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	rec, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		logger.FUNNEL.Debug("postback for unknown user",
			slog.String("event", "funnel.postback"),
			slog.Int64("uid", userID),
		)
		return nil
	}
	from := rec.Stage

	m.followups.CancelAll(userID)

	rec, err = m.store.Update(ctx, userID, func(r *store.Record) {
		r.Stage = store.StageRegistered
	})
	if err != nil {
		return err
	}
	if err := m.segments.Rebuild(ctx, userID, store.StageRegistered); err != nil {
		return err
	}

	lang := m.langOf(rec)
	m.scheduleStageFollowup(userID, FollowupReactivation, m.cfg.ReactivationDelay, store.StageRegistered, texts.Reactivation)

	m.logTransition(userID, from, store.StageRegistered)

	depURL := m.links.Deposit(userID, rec.Payload, lang)
	m.send(ctx, userID, texts.RegistrationConfirmed(lang, rec.Nickname), texts.DepositKeyboard(lang, depURL))
	return nil
}

// Deposited applies a deposit postback. Unknown users are a no-op. The
// deposited stage is terminal and cancels every pending follow-up.
func (m *Machine) Deposited(ctx context.Context, userID int64) error {
	unlock := m.locks.lock(userID)
	defer unlock()

	rec, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		logger.FUNNEL.Debug("postback for unknown user",
			slog.String("event", "funnel.postback"),
			slog.Int64("uid", userID),
		)
		return nil
	}
	from := rec.Stage

	m.followups.CancelAll(userID)

	rec, err = m.store.Update(ctx, userID, func(r *store.Record) {
		r.Stage = store.StageDeposited
	})
	if err != nil {
		return err
	}
	if err := m.segments.Rebuild(ctx, userID, store.StageDeposited); err != nil {
		return err
	}

	m.logTransition(userID, from, store.StageDeposited)

	m.send(ctx, userID, texts.DepositDone(m.langOf(rec)), nil)
	return nil
}

// DepositInfo re-sends the deposit call to action with a fresh link.
func (m *Machine) DepositInfo(ctx context.Context, userID int64) error {
	rec, ok, err := m.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	lang := m.langOf(rec)
	depURL := m.links.Deposit(userID, rec.Payload, lang)
	m.send(ctx, userID, texts.RegistrationConfirmed(lang, rec.Nickname), texts.DepositKeyboard(lang, depURL))
	return nil
}

// HowItWorks sends the three-step explainer.
func (m *Machine) HowItWorks(ctx context.Context, userID int64) error {
	lang := m.Language(ctx, userID)
	m.send(ctx, userID, texts.HowItWorks(lang), texts.BackKeyboard(lang))
	return nil
}

// PayoutsInfo sends the payouts placeholder.
func (m *Machine) PayoutsInfo(ctx context.Context, userID int64) error {
	m.send(ctx, userID, texts.Payouts(m.Language(ctx, userID)), nil)
	return nil
}

// HelpRequested sends the FAQ pointer with the support button.
func (m *Machine) HelpRequested(ctx context.Context, userID int64) error {
	lang := m.Language(ctx, userID)
	m.send(ctx, userID, texts.Help(lang), texts.HelpKeyboard(lang))
	return nil
}

// SupportRequested acknowledges a support contact request.
func (m *Machine) SupportRequested(ctx context.Context, userID int64) error {
	m.send(ctx, userID, texts.SupportAck(m.Language(ctx, userID)), nil)
	return nil
}

// Language returns the user's effective language.
func (m *Machine) Language(ctx context.Context, userID int64) string {
	rec, ok, err := m.store.Get(ctx, userID)
	if err != nil || !ok {
		return m.cfg.FallbackLanguage
	}
	return m.langOf(rec)
}

func (m *Machine) langOf(rec store.Record) string {
	if rec.Language == "" {
		return m.cfg.FallbackLanguage
	}
	return rec.Language
}

// scheduleLanguageDefault arms the auto-default timer. When it fires the
// guard re-checks the record, so a language picked in the meantime wins.
func (m *Machine) scheduleLanguageDefault(userID int64) {
	err := m.followups.Schedule(userID, FollowupLanguageDefault, m.cfg.LanguageTimeout, func(ctx context.Context) {
		unlock := m.locks.lock(userID)
		defer unlock()

		rec, ok, err := m.store.Get(ctx, userID)
		if err != nil || !ok {
			return
		}
		if rec.Language != "" {
			m.logSuppressed(userID, FollowupLanguageDefault, rec.Stage)
			return
		}
		rec, err = m.store.Update(ctx, userID, func(r *store.Record) {
			r.Language = m.cfg.FallbackLanguage
		})
		if err != nil {
			return
		}
		if err := m.segments.Rebuild(ctx, userID, rec.Stage); err != nil {
			return
		}
		if !rec.AgeConfirmed {
			m.send(ctx, userID, texts.AgeGate(rec.Language), texts.AgeKeyboard(rec.Language))
		}
	})
	if err != nil {
		logger.FUNNEL.Warn("follow-up scheduling failed",
			slog.String("event", "followup.schedule"),
			slog.Int64("uid", userID),
			slog.String("followup", FollowupLanguageDefault),
			slog.String("err", err.Error()),
		)
	}
}

// scheduleStageFollowup arms a delayed message that only goes out if the
// user is still in requiredStage when the timer fires.
func (m *Machine) scheduleStageFollowup(userID int64, key string, delay time.Duration, requiredStage store.Stage, text func(lang string) string) {
	err := m.followups.Schedule(userID, key, delay, func(ctx context.Context) {
		unlock := m.locks.lock(userID)
		defer unlock()

		rec, ok, err := m.store.Get(ctx, userID)
		if err != nil || !ok {
			return
		}
		if rec.Stage != requiredStage {
			m.logSuppressed(userID, key, rec.Stage)
			return
		}
		m.send(ctx, userID, text(m.langOf(rec)), nil)
	})
	if err != nil {
		logger.FUNNEL.Warn("follow-up scheduling failed",
			slog.String("event", "followup.schedule"),
			slog.Int64("uid", userID),
			slog.String("followup", key),
			slog.String("err", err.Error()),
		)
	}
}

// send delivers a message and logs delivery failures. A failed send never
// rolls back the transition that triggered it.
func (m *Machine) send(ctx context.Context, userID int64, text string, markup *tele.ReplyMarkup) {
	if err := m.gateway.Send(ctx, userID, text, markup); err != nil {
		logger.FUNNEL.Warn("message delivery failed",
			slog.String("event", "funnel.send"),
			slog.Int64("uid", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (m *Machine) logTransition(userID int64, from, to store.Stage) {
	logger.FUNNEL.Info("stage transition",
		slog.String("event", "funnel.transition"),
		slog.Int64("uid", userID),
		slog.String("from_stage", string(from)),
		slog.String("stage", string(to)),
	)
}

func (m *Machine) logSuppressed(userID int64, key string, stage store.Stage) {
	logger.FUNNEL.Debug("follow-up suppressed",
		slog.String("event", "followup.suppress"),
		slog.Int64("uid", userID),
		slog.String("followup", key),
		slog.String("stage", string(stage)),
	)
}
