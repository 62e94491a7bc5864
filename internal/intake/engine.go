package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrAccessDenied    = errors.New("access denied")
	ErrNotConfigured   = errors.New("not configured")
	ErrUnsupportedFile = errors.New("unsupported file")
)

// Messenger delivers outbound replies to a conversation.
type Messenger interface {
	Send(ctx context.Context, chatID int64, reply Reply) (int64, error)
	Edit(ctx context.Context, chatID, messageID int64, text string) error
}

type EngineOptions struct {
	// AllowedChats restricts the flow to these conversations; empty allows all.
	AllowedChats []int64
	DashboardURL string
	// BotUserID identifies the bot's own messages in group replies.
	BotUserID int64
	Sessions  SessionStore
	Dedup     *Deduplicator
	Messenger Messenger
	Finalizer *Finalizer
	Logger    *slog.Logger
}

type Engine struct {
	allowed      map[int64]struct{}
	dashboardURL string
	botUserID    int64
	sessions     SessionStore
	dedup        *Deduplicator
	messenger    Messenger
	finalizer    *Finalizer
	locks        *keyedMutex
	logger       *slog.Logger
}

func NewEngine(opts EngineOptions) *Engine {
	allowed := make(map[int64]struct{}, len(opts.AllowedChats))
	for _, id := range opts.AllowedChats {
		allowed[id] = struct{}{}
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewMemorySessionStore(0, 0)
	}
	dedup := opts.Dedup
	if dedup == nil {
		dedup = NewDeduplicator(0, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		allowed:      allowed,
		dashboardURL: strings.TrimSpace(opts.DashboardURL),
		botUserID:    opts.BotUserID,
		sessions:     sessions,
		dedup:        dedup,
		messenger:    opts.Messenger,
		finalizer:    opts.Finalizer,
		locks:        newKeyedMutex(),
		logger:       logger,
	}
}

// HandleUpdate consumes one inbound event. Replayed update ids are dropped
// before they can touch a session.
func (e *Engine) HandleUpdate(ctx context.Context, u Update) error {
	if key := updateKey(u); !e.dedup.ShouldProcess(key) {
		e.log(ctx).Debug("duplicate update ignored", "update_id", key)
		return nil
	}
	m := u.EventMessage()
	if m == nil || m.Chat.ID == 0 {
		return nil
	}
	if m.IsGroup() && !m.mentions() && !m.repliesTo(e.botUserID) {
		e.log(ctx).Debug("group message not addressed to bot", "chat_id", m.Chat.ID)
		return nil
	}

	unlock := e.locks.Lock(m.Chat.ID)
	defer unlock()

	switch {
	case m.Text != "":
		return e.handleText(ctx, m.Chat.ID, m.Text)
	case m.HasFile():
		return e.handleFile(ctx, m)
	default:
		return nil
	}
}

// Session returns the current state of a conversation, or a fresh session
// when none has been recorded.
func (e *Engine) Session(chatID int64) Session {
	if session, ok := e.sessions.Get(chatID); ok {
		return session
	}
	return NewSession()
}

func (e *Engine) handleText(ctx context.Context, chatID int64, text string) error {
	t := strings.TrimSpace(text)
	if isDashboardCommand(t) {
		return e.sendDashboard(ctx, chatID, msgDashboard)
	}
	session := e.Session(chatID)
	if IsStartCommand(t) || session.Step == StepDone {
		return e.start(ctx, chatID)
	}
	if err := e.authorize(chatID); err != nil {
		e.log(ctx).Info("update rejected", "chat_id", chatID, "error", err)
		return e.send(ctx, chatID, plain(msgAccessDenied))
	}

	next, replies := Advance(session, t)
	e.sessions.Set(chatID, next)
	if next.Step != session.Step {
		e.log(ctx).Debug("session advanced", "chat_id", chatID, "from", session.Step, "to", next.Step)
	}
	var errs []error
	for _, reply := range replies {
		if err := e.send(ctx, chatID, reply); err != nil {
			errs = append(errs, err)
		}
	}
	if next.Step == StepAwaitFile && session.Step != StepAwaitFile && e.dashboardURL != "" {
		if err := e.sendDashboard(ctx, chatID, msgDashboard); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) handleFile(ctx context.Context, m *Message) error {
	chatID := m.Chat.ID
	session, ok := e.sessions.Get(chatID)
	if !ok || session.Step != StepAwaitFile {
		e.log(ctx).Debug("file outside of invoice step ignored", "chat_id", chatID)
		return nil
	}
	if err := e.authorize(chatID); err != nil {
		e.log(ctx).Info("update rejected", "chat_id", chatID, "error", err)
		return e.send(ctx, chatID, plain(msgAccessDenied))
	}
	if e.finalizer == nil {
		if err := e.send(ctx, chatID, plain(fmt.Sprintf(msgNotConfigured, "finalizer"))); err != nil {
			e.log(ctx).Warn("send failed", "chat_id", chatID, "error", err)
		}
		return fmt.Errorf("%w: finalizer", ErrNotConfigured)
	}
	next, err := e.finalizer.Finalize(ctx, FinalizeRequest{
		ChatID:  chatID,
		From:    m.From,
		Message: m,
		Session: session,
	})
	e.sessions.Set(chatID, next)
	if err != nil {
		return err
	}
	return e.sendNextActions(ctx, chatID)
}

func (e *Engine) start(ctx context.Context, chatID int64) error {
	e.sessions.Set(chatID, NewSession())
	return errors.Join(
		e.send(ctx, chatID, homeKeyboard(msgNewReport)),
		e.sendDashboard(ctx, chatID, msgDashboard),
	)
}

func (e *Engine) sendNextActions(ctx context.Context, chatID int64) error {
	return errors.Join(
		e.send(ctx, chatID, homeKeyboard(msgNextAction)),
		e.sendDashboard(ctx, chatID, msgDashboard),
	)
}

func (e *Engine) sendDashboard(ctx context.Context, chatID int64, text string) error {
	if e.dashboardURL == "" {
		return nil
	}
	return e.send(ctx, chatID, Reply{
		Text: text,
		Link: &LinkButton{Text: dashboardButtonLabel, URL: e.dashboardURL},
	})
}

func (e *Engine) send(ctx context.Context, chatID int64, reply Reply) error {
	if e.messenger == nil {
		return nil
	}
	_, err := e.messenger.Send(ctx, chatID, reply)
	return err
}

// authorize checks chatID against the allow-list. An empty list admits
// every chat.
func (e *Engine) authorize(chatID int64) error {
	if len(e.allowed) == 0 {
		return nil
	}
	if _, ok := e.allowed[chatID]; !ok {
		return fmt.Errorf("%w: chat %d", ErrAccessDenied, chatID)
	}
	return nil
}

// Advance applies one text input to a session that is not in the done state
// and returns the resulting session plus the replies to send. Invalid input
// leaves the session unchanged and re-prompts.
func Advance(session Session, text string) (Session, []Reply) {
	t := strings.TrimSpace(text)
	next := session
	switch session.Step {
	case StepUnitType:
		assetType, ok := ParseAssetType(t)
		if !ok {
			return session, []Reply{homeKeyboard(msgChooseUnit)}
		}
		next.Draft.AssetType = assetType
		next.Step = StepUnitNumber
		if assetType == AssetTruck {
			return next, []Reply{withoutKeyboard(msgEnterTruck)}
		}
		return next, []Reply{withoutKeyboard(msgEnterTrailer)}
	case StepUnitNumber:
		if t == "" {
			return session, []Reply{plain(msgInvalidNumber)}
		}
		if session.Draft.AssetType == AssetTrailer {
			next.Draft.TrailerNo = t
			next.Step = StepLinkTruck
			return next, []Reply{plain(msgLinkTruck)}
		}
		next.Draft.TruckNo = t
		next.Step = StepRepair
		return next, []Reply{plain(msgDescribeIssue)}
	case StepLinkTruck:
		if t == "" {
			return session, []Reply{plain(msgEnterLinkTruck)}
		}
		next.Draft.TruckNo = t
		next.Step = StepRepair
		return next, []Reply{plain(msgDescribeIssue)}
	case StepRepair:
		if t == "" {
			return session, []Reply{plain(msgEnterIssue)}
		}
		next.Draft.Issue = t
		next.Step = StepPaidBy
		return next, []Reply{payerKeyboard(msgPaidBy)}
	case StepPaidBy:
		payer, ok := ParsePayer(t)
		if !ok {
			return session, []Reply{payerKeyboard(msgChoosePayer)}
		}
		next.Draft.PaidBy = payer
		next.Step = StepTotal
		return next, []Reply{withoutKeyboard(msgTotal)}
	case StepTotal:
		amount, err := NormalizeAmount(t)
		if err != nil {
			return session, []Reply{plain(msgInvalidTotal)}
		}
		next.Draft.Total = amount
		next.Step = StepNotes
		return next, []Reply{plain(msgNotes)}
	case StepNotes:
		if t == "-" {
			t = ""
		}
		next.Draft.Notes = t
		next.Draft.HasNotes = true
		next.Step = StepAwaitFile
		return next, []Reply{withoutKeyboard(msgSendInvoice)}
	case StepAwaitFile:
		return session, []Reply{plain(msgWaitingForFile)}
	case StepDone:
		return NewSession(), []Reply{homeKeyboard(msgNewReport)}
	default:
		return NewSession(), []Reply{homeKeyboard(msgNewReport)}
	}
}
