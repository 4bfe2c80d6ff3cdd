package funnel

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/funnelbot/core/config"
	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/affiliate"
	"github.com/m3rciful/funnelbot/internal/followup"
	"github.com/m3rciful/funnelbot/internal/segment"
	"github.com/m3rciful/funnelbot/internal/store"
	"github.com/m3rciful/funnelbot/internal/texts"
)

func TestMain(m *testing.M) {
	_ = logger.InitLogger(&coreconfig.Config{
		Logging: coreconfig.LoggingConfig{Level: "error", Format: "text"},
	})
	os.Exit(m.Run())
}

type fakeJob struct {
	key   string
	delay time.Duration
	fn    followup.Action
}

// fakeScheduler records scheduled follow-ups and fires them on demand.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs map[int64][]*fakeJob
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[int64][]*fakeJob)}
}

func (f *fakeScheduler) Schedule(userID int64, key string, delay time.Duration, fn followup.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[userID] = append(f.jobs[userID], &fakeJob{key: key, delay: delay, fn: fn})
	return nil
}

func (f *fakeScheduler) CancelAll(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.jobs[userID])
	delete(f.jobs, userID)
	return n
}

func (f *fakeScheduler) Pending(userID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.jobs[userID]))
	for _, j := range f.jobs[userID] {
		keys = append(keys, j.key)
	}
	return keys
}

func (f *fakeScheduler) Close() error { return nil }

// take removes the pending job with key and returns its action, so tests
// can fire it at a chosen moment.
func (f *fakeScheduler) take(t *testing.T, userID int64, key string) followup.Action {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, j := range f.jobs[userID] {
		if j.key == key {
			f.jobs[userID] = append(f.jobs[userID][:i], f.jobs[userID][i+1:]...)
			return j.fn
		}
	}
	t.Fatalf("no pending follow-up %q for user %d", key, userID)
	return nil
}

// fire runs the pending job with key.
func (f *fakeScheduler) fire(t *testing.T, userID int64, key string) {
	t.Helper()
	f.take(t, userID, key)(context.Background())
}

type sentMsg struct {
	userID int64
	text   string
	markup *tele.ReplyMarkup
}

type fakeGateway struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (g *fakeGateway) Send(_ context.Context, userID int64, text string, markup *tele.ReplyMarkup) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, sentMsg{userID: userID, text: text, markup: markup})
	return nil
}

func (g *fakeGateway) messages() []sentMsg {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMsg(nil), g.sent...)
}

func (g *fakeGateway) countText(text string) int {
	n := 0
	for _, m := range g.messages() {
		if m.text == text {
			n++
		}
	}
	return n
}

func (g *fakeGateway) lastText(t *testing.T) string {
	t.Helper()
	msgs := g.messages()
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	return msgs[len(msgs)-1].text
}

type testEnv struct {
	machine  *Machine
	store    store.Store
	segments segment.Index
	sched    *fakeScheduler
	gw       *fakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	links, err := affiliate.New("https://partner.example.com/register", "https://partner.example.com/deposit")
	if err != nil {
		t.Fatalf("links: %v", err)
	}
	st := store.NewMemory()
	idx := segment.NewMemory()
	sched := newFakeScheduler()
	gw := &fakeGateway{}
	m := New(st, idx, sched, gw, links, Config{
		LanguageTimeout:   time.Minute,
		ReminderShort:     30 * time.Minute,
		ReminderLong:      24 * time.Hour,
		ReactivationDelay: 48 * time.Hour,
	})
	return &testEnv{machine: m, store: st, segments: idx, sched: sched, gw: gw}
}

// assertSingleSegment checks the user belongs to exactly one stage set.
func assertSingleSegment(t *testing.T, idx segment.Index, userID int64, want store.Stage) {
	t.Helper()
	ctx := context.Background()
	for _, stage := range store.Stages() {
		members, err := idx.Members(ctx, stage)
		if err != nil {
			t.Fatalf("members %s: %v", stage, err)
		}
		found := false
		for _, id := range members {
			if id == userID {
				found = true
			}
		}
		if stage == want && !found {
			t.Fatalf("user %d missing from segment %s", userID, stage)
		}
		if stage != want && found {
			t.Fatalf("user %d unexpectedly in segment %s (want only %s)", userID, stage, want)
		}
	}
}

func mustRecord(t *testing.T, st store.Store, userID int64) store.Record {
	t.Helper()
	rec, ok, err := st.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("record %d not found", userID)
	}
	return rec
}

func TestStartCreatesRecordAndArmsLanguageDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", "camp42"); err != nil {
		t.Fatalf("start: %v", err)
	}

	rec := mustRecord(t, env.store, 1)
	if rec.Stage != store.StageNew {
		t.Fatalf("stage = %s, want new", rec.Stage)
	}
	if rec.Payload != "camp42" {
		t.Fatalf("payload = %q", rec.Payload)
	}
	if got := env.sched.Pending(1); len(got) != 1 || got[0] != FollowupLanguageDefault {
		t.Fatalf("pending = %v", got)
	}
	if env.gw.lastText(t) != texts.LanguagePrompt() {
		t.Fatalf("last message = %q", env.gw.lastText(t))
	}
	assertSingleSegment(t, env.segments, 1, store.StageNew)
}

func TestStartKeepsPayloadAndProgressOnReentry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", "camp42"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.machine.LanguageChosen(ctx, 1, "ru"); err != nil {
		t.Fatalf("lang: %v", err)
	}
	if err := env.machine.AgeConfirmed(ctx, 1); err != nil {
		t.Fatalf("age: %v", err)
	}

	if err := env.machine.Start(ctx, 1, "Ann", "other"); err != nil {
		t.Fatalf("restart: %v", err)
	}

	rec := mustRecord(t, env.store, 1)
	if rec.Payload != "camp42" {
		t.Fatalf("payload overwritten: %q", rec.Payload)
	}
	if !rec.AgeConfirmed || rec.Language != "ru" {
		t.Fatalf("progress lost: %+v", rec)
	}
	// Re-entry replaces all pending follow-ups with a fresh language timer.
	if got := env.sched.Pending(1); len(got) != 1 || got[0] != FollowupLanguageDefault {
		t.Fatalf("pending = %v", got)
	}
}

func TestLanguageTimeoutDefaultsToEnglish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.sched.fire(t, 1, FollowupLanguageDefault)

	rec := mustRecord(t, env.store, 1)
	if rec.Language != texts.LangEN {
		t.Fatalf("language = %q, want en", rec.Language)
	}
	if env.gw.lastText(t) != texts.AgeGate(texts.LangEN) {
		t.Fatalf("expected age gate, got %q", env.gw.lastText(t))
	}
}

func TestLatePickAfterTimeoutDoesNotRepeatAgeGate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.sched.fire(t, 1, FollowupLanguageDefault)

	if err := env.machine.LanguageChosen(ctx, 1, "ru"); err != nil {
		t.Fatalf("lang: %v", err)
	}

	rec := mustRecord(t, env.store, 1)
	if rec.Language != texts.LangRU {
		t.Fatalf("language = %q, want ru", rec.Language)
	}
	gates := env.gw.countText(texts.AgeGate(texts.LangEN)) + env.gw.countText(texts.AgeGate(texts.LangRU))
	if gates != 1 {
		t.Fatalf("age gate sent %d times, want 1", gates)
	}
}

func TestTimeoutAfterPickIsSuppressed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	fn := env.sched.take(t, 1, FollowupLanguageDefault)
	if err := env.machine.LanguageChosen(ctx, 1, "ru"); err != nil {
		t.Fatalf("lang: %v", err)
	}
	before := len(env.gw.messages())

	fn(context.Background())

	if got := len(env.gw.messages()); got != before {
		t.Fatalf("timeout sent %d extra messages", got-before)
	}
	if rec := mustRecord(t, env.store, 1); rec.Language != texts.LangRU {
		t.Fatalf("language overwritten to %q", rec.Language)
	}
}

func TestUnsupportedLanguageResolvesToEnglish(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.machine.LanguageChosen(ctx, 1, "de"); err != nil {
		t.Fatalf("lang: %v", err)
	}
	if rec := mustRecord(t, env.store, 1); rec.Language != texts.LangEN {
		t.Fatalf("language = %q, want en", rec.Language)
	}
}

func TestNicknameCaptureAdvancesToClickedRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", "camp42"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.machine.LanguageChosen(ctx, 1, "en"); err != nil {
		t.Fatalf("lang: %v", err)
	}
	if err := env.machine.AgeConfirmed(ctx, 1); err != nil {
		t.Fatalf("age: %v", err)
	}
	if err := env.machine.NicknameEntryRequested(ctx, 1); err != nil {
		t.Fatalf("nick enter: %v", err)
	}

	handled, err := env.machine.FreeText(ctx, 1, "  CoolPlayer  ")
	if err != nil {
		t.Fatalf("free text: %v", err)
	}
	if !handled {
		t.Fatal("nickname text not handled")
	}

	rec := mustRecord(t, env.store, 1)
	if rec.Nickname != "CoolPlayer" {
		t.Fatalf("nickname = %q", rec.Nickname)
	}
	if rec.Stage != store.StageClickedRegister {
		t.Fatalf("stage = %s", rec.Stage)
	}
	if rec.AwaitingNickname {
		t.Fatal("awaiting flag not cleared")
	}
	assertSingleSegment(t, env.segments, 1, store.StageClickedRegister)

	pending := env.sched.Pending(1)
	if len(pending) != 2 || pending[0] != FollowupReminderShort || pending[1] != FollowupReminderLong {
		t.Fatalf("pending = %v", pending)
	}

	// The register link carries attribution.
	msgs := env.gw.messages()
	last := msgs[len(msgs)-1]
	if last.text != texts.RegisterIntro(texts.LangEN) {
		t.Fatalf("last message = %q", last.text)
	}
	if last.markup == nil || len(last.markup.InlineKeyboard) == 0 {
		t.Fatal("register keyboard missing")
	}
	url := last.markup.InlineKeyboard[0][0].URL
	for _, part := range []string{"uid=1", "src=camp42", "lang=en"} {
		if !strings.Contains(url, part) {
			t.Fatalf("register url %q missing %q", url, part)
		}
	}
}

func TestFreeTextWithoutAwaitingIsNotHandled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	handled, err := env.machine.FreeText(ctx, 1, "hello there")
	if err != nil {
		t.Fatalf("free text: %v", err)
	}
	if handled {
		t.Fatal("plain text treated as nickname")
	}
}

func TestNicknameTruncatedToLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.machine.NicknameEntryRequested(ctx, 1); err != nil {
		t.Fatalf("nick enter: %v", err)
	}
	long := strings.Repeat("я", 40)
	if _, err := env.machine.FreeText(ctx, 1, long); err != nil {
		t.Fatalf("free text: %v", err)
	}
	rec := mustRecord(t, env.store, 1)
	if got := len([]rune(rec.Nickname)); got != 32 {
		t.Fatalf("nickname length = %d runes, want 32", got)
	}
}

func TestGeneratedNicknameFormat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.machine.NicknameGenerated(ctx, 1); err != nil {
		t.Fatalf("nick gen: %v", err)
	}
	rec := mustRecord(t, env.store, 1)
	re := regexp.MustCompile(`^Player_(Falcon|Eagle|Wolf|Tiger|Fox|Hawk|Raven|Shark)_\d{4}$`)
	if !re.MatchString(rec.Nickname) {
		t.Fatalf("nickname %q does not match generator format", rec.Nickname)
	}
	if rec.Stage != store.StageClickedRegister {
		t.Fatalf("stage = %s", rec.Stage)
	}
}

func TestRegisteredPostbackTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driveToClickedRegister(t, env)

	if err := env.machine.Registered(ctx, 1); err != nil {
		t.Fatalf("registered: %v", err)
	}

	rec := mustRecord(t, env.store, 1)
	if rec.Stage != store.StageRegistered {
		t.Fatalf("stage = %s", rec.Stage)
	}
	assertSingleSegment(t, env.segments, 1, store.StageRegistered)

	// Reminders were replaced by the reactivation follow-up.
	if got := env.sched.Pending(1); len(got) != 1 || got[0] != FollowupReactivation {
		t.Fatalf("pending = %v", got)
	}

	msgs := env.gw.messages()
	last := msgs[len(msgs)-1]
	if last.text != texts.RegistrationConfirmed(texts.LangEN, "CoolPlayer") {
		t.Fatalf("last message = %q", last.text)
	}
	if last.markup == nil || !strings.Contains(last.markup.InlineKeyboard[0][0].URL, "uid=1") {
		t.Fatal("deposit keyboard missing attribution")
	}
}

func TestRegisteredIsIdempotentForPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driveToClickedRegister(t, env)

	if err := env.machine.Registered(ctx, 1); err != nil {
		t.Fatalf("registered: %v", err)
	}
	if err := env.machine.Registered(ctx, 1); err != nil {
		t.Fatalf("registered again: %v", err)
	}

	if got := env.sched.Pending(1); len(got) != 1 || got[0] != FollowupReactivation {
		t.Fatalf("pending after duplicate = %v", got)
	}
	assertSingleSegment(t, env.segments, 1, store.StageRegistered)
}

func TestReminderSuppressedAfterRegistration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driveToClickedRegister(t, env)

	// Simulate the reminder firing concurrently with the postback: the
	// timer pops before cancellation but runs after the transition.
	fn := env.sched.take(t, 1, FollowupReminderShort)
	if err := env.machine.Registered(ctx, 1); err != nil {
		t.Fatalf("registered: %v", err)
	}
	before := len(env.gw.messages())

	fn(context.Background())

	if got := len(env.gw.messages()); got != before {
		t.Fatal("stale reminder was delivered")
	}
}

func TestDepositCancelsReactivation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driveToClickedRegister(t, env)

	if err := env.machine.Registered(ctx, 1); err != nil {
		t.Fatalf("registered: %v", err)
	}
	if err := env.machine.Deposited(ctx, 1); err != nil {
		t.Fatalf("deposited: %v", err)
	}

	rec := mustRecord(t, env.store, 1)
	if rec.Stage != store.StageDeposited {
		t.Fatalf("stage = %s", rec.Stage)
	}
	if got := env.sched.Pending(1); len(got) != 0 {
		t.Fatalf("pending after deposit = %v", got)
	}
	assertSingleSegment(t, env.segments, 1, store.StageDeposited)
	if env.gw.lastText(t) != texts.DepositDone(texts.LangEN) {
		t.Fatalf("last message = %q", env.gw.lastText(t))
	}
}

func TestReactivationSuppressedAfterDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driveToClickedRegister(t, env)

	if err := env.machine.Registered(ctx, 1); err != nil {
		t.Fatalf("registered: %v", err)
	}
	fn := env.sched.take(t, 1, FollowupReactivation)
	if err := env.machine.Deposited(ctx, 1); err != nil {
		t.Fatalf("deposited: %v", err)
	}
	before := len(env.gw.messages())

	fn(context.Background())

	if got := len(env.gw.messages()); got != before {
		t.Fatal("stale reactivation was delivered")
	}
}

func TestPostbackForUnknownUserIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Registered(ctx, 999); err != nil {
		t.Fatalf("registered: %v", err)
	}
	if err := env.machine.Deposited(ctx, 999); err != nil {
		t.Fatalf("deposited: %v", err)
	}
	if got := len(env.gw.messages()); got != 0 {
		t.Fatalf("%d messages sent for unknown user", got)
	}
	for _, stage := range store.Stages() {
		members, err := env.segments.Members(ctx, stage)
		if err != nil {
			t.Fatalf("members: %v", err)
		}
		if len(members) != 0 {
			t.Fatalf("segment %s not empty: %v", stage, members)
		}
	}
}

func TestDeliveryFailureDoesNotRollBackTransition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	driveToClickedRegister(t, env)

	env.gw.mu.Lock()
	env.gw.err = errors.New("blocked by user")
	env.gw.mu.Unlock()

	if err := env.machine.Registered(ctx, 1); err != nil {
		t.Fatalf("registered: %v", err)
	}
	rec := mustRecord(t, env.store, 1)
	if rec.Stage != store.StageRegistered {
		t.Fatalf("stage rolled back to %s", rec.Stage)
	}
	assertSingleSegment(t, env.segments, 1, store.StageRegistered)
}

func TestAgeGateRepeatedForUnconfirmedBonusRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.machine.Start(ctx, 1, "Ann", ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.machine.LanguageChosen(ctx, 1, "en"); err != nil {
		t.Fatalf("lang: %v", err)
	}
	if err := env.machine.RequestBonus(ctx, 1); err != nil {
		t.Fatalf("bonus: %v", err)
	}
	if env.gw.lastText(t) != texts.AgeGate(texts.LangEN) {
		t.Fatalf("expected age gate, got %q", env.gw.lastText(t))
	}
}

// driveToClickedRegister walks user 1 through the funnel until the
// registration link is out.
func driveToClickedRegister(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	if err := env.machine.Start(ctx, 1, "Ann", "camp42"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.machine.LanguageChosen(ctx, 1, "en"); err != nil {
		t.Fatalf("lang: %v", err)
	}
	if err := env.machine.AgeConfirmed(ctx, 1); err != nil {
		t.Fatalf("age: %v", err)
	}
	if err := env.machine.NicknameEntryRequested(ctx, 1); err != nil {
		t.Fatalf("nick enter: %v", err)
	}
	if _, err := env.machine.FreeText(ctx, 1, "CoolPlayer"); err != nil {
		t.Fatalf("free text: %v", err)
	}
}
