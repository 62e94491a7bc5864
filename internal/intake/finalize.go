package intake

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentworkforce/fleetdesk/internal/intake"

// FileSource resolves a messenger file id to a transient locator and fetches
// its bytes.
type FileSource interface {
	ResolveFile(ctx context.Context, fileID string) (string, error)
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type UploadRequest struct {
	Container string
	Name      string
	MimeType  string
	Body      []byte
}

type StoredObject struct {
	ID   string
	Link string
}

// ObjectStore keeps uploaded proof files. The token is empty when no
// identity provider is configured.
type ObjectStore interface {
	Upload(ctx context.Context, token string, req UploadRequest) (StoredObject, error)
	Publish(ctx context.Context, token, objectID string) error
}

type SheetTarget struct {
	Spreadsheet string
	Sheet       string
}

type ReportSink interface {
	AppendRow(ctx context.Context, token string, target SheetTarget, row []string) error
}

// TargetChecker is implemented by sinks that can reject a destination
// without touching the network.
type TargetChecker interface {
	CheckTarget(target SheetTarget) error
}

type FinalizerOptions struct {
	Container   string
	Target      SheetTarget
	PublicLinks bool
	Location    *time.Location
	Messenger   Messenger
	Files       FileSource
	Tokens      TokenSource
	Objects     ObjectStore
	Sink        ReportSink
	Logger      *slog.Logger
	Now         func() time.Time
}

type Finalizer struct {
	container   string
	target      SheetTarget
	publicLinks bool
	location    *time.Location
	messenger   Messenger
	files       FileSource
	tokens      TokenSource
	objects     ObjectStore
	sink        ReportSink
	logger      *slog.Logger
	now         func() time.Time
	tracer      trace.Tracer
}

type FinalizeRequest struct {
	ChatID  int64
	From    *User
	Message *Message
	Session Session
}

func NewFinalizer(opts FinalizerOptions) *Finalizer {
	location := opts.Location
	if location == nil {
		location = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Finalizer{
		container:   strings.TrimSpace(opts.Container),
		target:      opts.Target,
		publicLinks: opts.PublicLinks,
		location:    location,
		messenger:   opts.Messenger,
		files:       opts.Files,
		tokens:      opts.Tokens,
		objects:     opts.Objects,
		sink:        opts.Sink,
		logger:      logger,
		now:         now,
		tracer:      otel.Tracer(tracerName),
	}
}

// Finalize runs the upload-and-record pipeline for a file received at the
// invoice step. On success the returned session is done with an empty draft;
// on any failure the input session is returned unchanged so the user can
// resend the file.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (Session, error) {
	ctx, span := f.tracer.Start(ctx, "intake.finalize", trace.WithAttributes(attribute.Int64("chat.id", req.ChatID)))
	defer span.End()

	session := req.Session
	if err := f.checkConfig(); err != nil {
		f.reply(ctx, req.ChatID, fmt.Sprintf(msgNotConfigured, causeText(err)))
		return session, fail(span, fmt.Errorf("%w: %s", ErrNotConfigured, err.Error()))
	}

	status := f.postStatus(ctx, req.ChatID)

	attachment, ok := ResolveAttachment(req.Message)
	if !ok {
		status.finish(ctx, msgUnsupportedFile)
		return session, fail(span, ErrUnsupportedFile)
	}
	span.SetAttributes(attribute.String("attachment.kind", string(attachment.Kind)))

	body, err := f.download(ctx, attachment)
	if err != nil {
		status.finish(ctx, err.userMessage)
		return session, fail(span, err.cause)
	}

	record, storeErr := f.store(ctx, req, attachment, body)
	if storeErr != nil {
		f.log(ctx).Error("finalize failed", "chat_id", req.ChatID, "error", storeErr)
		status.finish(ctx, fmt.Sprintf(msgSaveFailed, causeText(storeErr)))
		return session, fail(span, storeErr)
	}

	f.log(ctx).Info("report recorded",
		"chat_id", req.ChatID,
		"asset", record.Asset,
		"amount", record.Amount,
		"artifact_link", record.ArtifactLink,
	)
	status.finish(ctx, msgSaved)
	return Session{Step: StepDone}, nil
}

// causeText renders an error for an HTML-formatted chat message. Remote
// errors quote URLs and response bodies verbatim.
func causeText(err error) string {
	return html.EscapeString(err.Error())
}

type downloadError struct {
	userMessage string
	cause       error
}

func (f *Finalizer) download(ctx context.Context, attachment Attachment) ([]byte, *downloadError) {
	if f.files == nil {
		return nil, &downloadError{userMessage: msgFileInfoFailed, cause: fmt.Errorf("%w: file source", ErrNotConfigured)}
	}
	stepCtx, span := f.tracer.Start(ctx, "intake.finalize.resolve_file")
	locator, err := f.files.ResolveFile(stepCtx, attachment.FileID)
	endStep(span, err)
	if err != nil {
		return nil, &downloadError{userMessage: msgFileInfoFailed, cause: fmt.Errorf("resolve file: %w", err)}
	}

	stepCtx, span = f.tracer.Start(ctx, "intake.finalize.fetch")
	body, err := f.files.Fetch(stepCtx, locator)
	endStep(span, err)
	if err != nil {
		return nil, &downloadError{userMessage: fmt.Sprintf(msgDownloadFailed, causeText(err)), cause: fmt.Errorf("fetch file: %w", err)}
	}
	return body, nil
}

func (f *Finalizer) store(ctx context.Context, req FinalizeRequest, attachment Attachment, body []byte) (ReportRecord, error) {
	token := ""
	if f.tokens != nil {
		stepCtx, span := f.tracer.Start(ctx, "intake.finalize.token")
		var err error
		token, err = f.tokens.Token(stepCtx)
		endStep(span, err)
		if err != nil {
			return ReportRecord{}, fmt.Errorf("access token: %w", err)
		}
	}

	now := f.now()
	stepCtx, span := f.tracer.Start(ctx, "intake.finalize.upload")
	object, err := f.objects.Upload(stepCtx, token, UploadRequest{
		Container: f.container,
		Name:      fmt.Sprintf("%d-%d-%s", req.ChatID, now.UnixMilli(), attachment.FileName),
		MimeType:  attachment.MimeType,
		Body:      body,
	})
	endStep(span, err)
	if err != nil {
		return ReportRecord{}, err
	}

	if f.publicLinks {
		stepCtx, span := f.tracer.Start(ctx, "intake.finalize.publish")
		err := f.objects.Publish(stepCtx, token, object.ID)
		endStep(span, err)
		if err != nil {
			f.log(ctx).Warn("public link permission failed", "chat_id", req.ChatID, "object_id", object.ID, "error", err)
		}
	}

	draft := req.Session.Draft
	record := ReportRecord{
		Date:         FormatReportDate(now, f.location),
		Asset:        AssetLabel(draft),
		Issue:        draft.Issue,
		Amount:       draft.Total,
		Payer:        string(draft.PaidBy),
		Reporter:     ReporterName(req.From),
		ArtifactLink: object.Link,
		Notes:        draft.Notes,
	}
	stepCtx, span = f.tracer.Start(ctx, "intake.finalize.append")
	err = f.sink.AppendRow(stepCtx, token, f.target, record.Row())
	endStep(span, err)
	if err != nil {
		return ReportRecord{}, err
	}
	return record, nil
}

func (f *Finalizer) checkConfig() error {
	if f.container == "" {
		return errors.New("destination folder")
	}
	if f.objects == nil {
		return errors.New("object store")
	}
	if f.sink == nil {
		return errors.New("report sink")
	}
	if checker, ok := f.sink.(TargetChecker); ok {
		if err := checker.CheckTarget(f.target); err != nil {
			return err
		}
	}
	return nil
}

type statusMessage struct {
	f         *Finalizer
	chatID    int64
	messageID int64
}

func (f *Finalizer) postStatus(ctx context.Context, chatID int64) statusMessage {
	status := statusMessage{f: f, chatID: chatID}
	if f.messenger == nil {
		return status
	}
	id, err := f.messenger.Send(ctx, chatID, plain(msgSaving))
	if err != nil {
		f.log(ctx).Warn("status message failed", "chat_id", chatID, "error", err)
		return status
	}
	status.messageID = id
	return status
}

// finish replaces the status message text, falling back to a new message
// when there is nothing to edit.
func (s statusMessage) finish(ctx context.Context, text string) {
	if s.f.messenger == nil {
		return
	}
	if s.messageID != 0 {
		err := s.f.messenger.Edit(ctx, s.chatID, s.messageID, text)
		if err == nil {
			return
		}
		s.f.log(ctx).Warn("status edit failed", "chat_id", s.chatID, "error", err)
	}
	s.f.reply(ctx, s.chatID, text)
}

func (f *Finalizer) reply(ctx context.Context, chatID int64, text string) {
	if f.messenger == nil {
		return
	}
	if _, err := f.messenger.Send(ctx, chatID, plain(text)); err != nil {
		f.log(ctx).Warn("reply failed", "chat_id", chatID, "error", err)
	}
}

func endStep(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
