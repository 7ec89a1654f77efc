package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"github.com/maykinmedia/gemma-zaken-demo/internal/config"
	"github.com/maykinmedia/gemma-zaken-demo/internal/registry"
	"github.com/maykinmedia/gemma-zaken-demo/internal/zds"
)

// ClientSource hands out API clients. *registry.Registry implements it.
type ClientSource interface {
	Client(service string, opts ...registry.LookupOption) (*zds.Client, error)
}

// Logger is the structured logger used by the handler.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Handler composes a message for every notification and publishes it.
type Handler struct {
	clients   ClientSource
	publisher Publisher
	logger    Logger
	now       func() time.Time
	detailURL func(zaakUUID string) string
	topic     string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithClock overrides the time used for message dates.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// WithDetailURL sets how a message links to a case.
func WithDetailURL(detailURL func(zaakUUID string) string) HandlerOption {
	return func(h *Handler) {
		h.detailURL = detailURL
	}
}

// WithTopic sets the topic messages are published on. Empty means the
// topic for everyone.
func WithTopic(topic string) HandlerOption {
	return func(h *Handler) {
		if topic != "" {
			h.topic = topic
		}
	}
}

// NewHandler creates a handler that looks up clients in clients and
// publishes on publisher.
func NewHandler(clients ClientSource, publisher Publisher, opts ...HandlerOption) *Handler {
	handler := &Handler{
		clients:   clients,
		publisher: publisher,
		now:       time.Now,
		topic:     TopicFor(""),
		detailURL: func(zaakUUID string) string {
			return "/api/zaken/" + zaakUUID
		},
	}

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

// Handle composes and publishes the message for n on the handler's topic.
// It returns nil without publishing when the notification must
// not be shown.
func (h *Handler) Handle(ctx context.Context, n Notification) (*Message, error) {
	msg, err := h.Compose(ctx, n)
	if err != nil || msg == nil {
		return nil, err
	}

	topic := h.topic

	err = h.publisher.Publish(ctx, topic, msg)
	if err != nil {
		return nil, fmt.Errorf("publishing to %s: %w", topic, err)
	}

	if h.logger != nil {
		h.logger.Info("Notification relayed", map[string]interface{}{
			"kanaal":    n.Kanaal,
			"resource":  n.Resource,
			"actie":     n.Actie,
			"topic":     topic,
			"reference": msg.Reference,
		})
	}

	return msg, nil
}

// Compose builds the message for n. New cases, status changes and added
// documents are described in detail; anything else gets a generic message.
func (h *Handler) Compose(ctx context.Context, n Notification) (*Message, error) {
	var (
		msg *Message
		err error
	)

	if n.Kanaal == "zaken" && n.Actie == zds.ActionCreate && isCaseResource(n.Resource) {
		msg, err = h.composeCase(ctx, n)
	} else {
		msg = composeGeneric(n)
	}

	if err != nil || msg == nil {
		return nil, err
	}

	msg.Date = h.now().Format("2006-01-02 15:04")

	return msg, nil
}

func isCaseResource(resource string) bool {
	switch resource {
	case "zaak", "status", "zaakinformatieobject":
		return true
	default:
		return false
	}
}

type caseContext struct {
	zrc      *zds.Client
	ztc      *zds.Client
	zaak     zds.Object
	zaakType zds.Object
}

//nolint:funlen
func (h *Handler) composeCase(ctx context.Context, n Notification) (*Message, error) {
	cc, err := h.loadCase(ctx, n.HoofdObject)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Reference: cc.zaak.String("identificatie"),
		URL:       h.detailURL(zds.UUIDFromURL(cc.zaak.String("url"))),
	}

	onderwerp := cc.zaakType.String("onderwerp")

	switch n.Resource {
	case "zaak":
		msg.Title = fmt.Sprintf("Zaak <strong>%s</strong> aangemaakt.", onderwerp)
		msg.Body = fmt.Sprintf(
			"Naar aanleiding van uw <strong>%s</strong> gaat de behandelaar deze zaak <strong>%s</strong>. "+
				"U kunt <strong>%s</strong> een opvolging verwachten. Bedankt voor het <strong>%s</strong>.",
			strings.ToLower(cc.zaakType.String("aanleiding")),
			strings.ToLower(cc.zaakType.String("handelingBehandelaar")),
			expectedWithin(cc.zaakType.String("doorlooptijd")),
			strings.ToLower(cc.zaakType.String("handelingInitiator")),
		)
	case "status":
		status, err := cc.zrc.RetrieveURL(ctx, "status", n.ResourceURL)
		if err != nil {
			return nil, fmt.Errorf("reading status: %w", err)
		}

		statusType, err := cc.ztc.RetrieveURL(ctx, "statustype", status.String("statustype"))
		if err != nil {
			return nil, fmt.Errorf("reading statustype: %w", err)
		}

		if informeren, ok := statusType["informeren"].(bool); ok && !informeren {
			if h.logger != nil {
				h.logger.Info("Statustype should not be communicated to initiator", map[string]interface{}{
					"statustype": status.String("statustype"),
				})
			}

			return nil, nil //nolint:nilnil // nothing to show
		}

		toelichting := ""
		if text := status.String("statustoelichting"); text != "" {
			toelichting = "Toelichting: " + text
		}

		msg.Title = fmt.Sprintf("Zaak %s gewijzigd.", onderwerp)
		msg.Body = strings.TrimSpace(fmt.Sprintf("De status van uw zaak is gewijzigd naar: %s. %s %s",
			statusType.String("omschrijving"), statusType.String("statustekst"), toelichting))
	case "zaakinformatieobject":
		document, documentType, err := h.loadDocument(ctx, cc, n.ResourceURL)
		if err != nil {
			return nil, err
		}

		omschrijving := documentType.String("omschrijving")
		if omschrijving == "" {
			omschrijving = "document"
		}

		msg.Title = fmt.Sprintf("Zaak %s gewijzigd.", onderwerp)
		msg.Body = fmt.Sprintf("Er is een %s toegevoegd aan uw zaak met de titel %q.",
			omschrijving, document.String("titel"))
	}

	return msg, nil
}

func (h *Handler) loadCase(ctx context.Context, zaakURL string) (*caseContext, error) {
	zrc, err := h.clients.Client(config.ServiceZRC, registry.ForURL(zaakURL))
	if err != nil {
		return nil, err
	}

	zaak, err := zrc.RetrieveURL(ctx, "zaak", zaakURL)
	if err != nil {
		return nil, fmt.Errorf("reading zaak: %w", err)
	}

	zaakTypeURL := zaak.String("zaaktype")

	ztc, err := h.clients.Client(config.ServiceZTC, registry.ForURL(zaakTypeURL))
	if err != nil {
		return nil, err
	}

	zaakType, err := ztc.RetrieveURL(ctx, "zaaktype", zaakTypeURL)
	if err != nil {
		return nil, fmt.Errorf("reading zaaktype: %w", err)
	}

	return &caseContext{zrc: zrc, ztc: ztc, zaak: zaak, zaakType: zaakType}, nil
}

// loadDocument follows a zaakinformatieobject to the document in the DRC
// and its type in the ZTC.
func (h *Handler) loadDocument(ctx context.Context, cc *caseContext, relationURL string) (zds.Object, zds.Object, error) {
	relation, err := cc.zrc.RetrieveURL(ctx, "zaakinformatieobject", relationURL)
	if err != nil {
		return nil, nil, fmt.Errorf("reading zaakinformatieobject: %w", err)
	}

	documentURL := relation.String("informatieobject")

	drc, err := h.clients.Client(config.ServiceDRC, registry.ForURL(documentURL))
	if err != nil {
		return nil, nil, err
	}

	document, err := drc.RetrieveURL(ctx, "enkelvoudiginformatieobject", documentURL)
	if err != nil {
		return nil, nil, fmt.Errorf("reading informatieobject: %w", err)
	}

	typeURL := document.String("informatieobjecttype")

	ztc, err := h.clients.Client(config.ServiceZTC, registry.ForURL(typeURL))
	if err != nil {
		return nil, nil, err
	}

	documentType, err := ztc.RetrieveURL(ctx, "informatieobjecttype", typeURL)
	if err != nil {
		return nil, nil, fmt.Errorf("reading informatieobjecttype: %w", err)
	}

	return document, documentType, nil
}

// expectedWithin phrases an ISO 8601 lead time. Durations in months or
// years, and unparseable values, read as "binnenkort".
func expectedWithin(doorlooptijd string) string {
	parsed, err := duration.Parse(doorlooptijd)
	if err != nil || parsed.Years != 0 || parsed.Months != 0 {
		return "binnenkort"
	}

	days := int(parsed.ToTimeDuration() / (24 * time.Hour))

	return fmt.Sprintf("binnen %d dagen", days)
}

var (
	channelNames = map[string]string{
		"zaken":      "zaak",
		"documenten": "document",
	}
	actionNames = map[string]string{
		"create":         "aangemaakt",
		"update":         "gewijzigd",
		"partial_update": "gewijzigd",
		"destroy":        "verwijderd",
		"read":           "opgevraagd",
		"list":           "voorgekomen in resultaten",
	}
)

func composeGeneric(n Notification) *Message {
	channel, ok := channelNames[n.Kanaal]
	if !ok {
		channel = n.Kanaal
	}

	var titleAction, body string

	if n.Resource == "zaak" || n.Resource == "document" {
		titleAction, ok = actionNames[n.Actie]
		if !ok {
			titleAction = fmt.Sprintf("\"heeft %s\" uitgevoerd", n.Actie)
		}
	} else {
		titleAction = "gewijzigd"

		resourceAction, ok := actionNames[n.Actie]
		if !ok {
			resourceAction = n.Actie
		}

		body = fmt.Sprintf("%s %s bij de %s.", titleCase(n.Resource), resourceAction, channel)
	}

	shortUUID := zds.UUIDFromURL(n.HoofdObject)
	if shortUUID == "" {
		shortUUID = "???"
	} else if len(shortUUID) > 10 {
		shortUUID = shortUUID[:10]
	}

	target := n.ResourceURL
	if target == "" {
		target = n.HoofdObject
	}

	return &Message{
		Title:     titleCase(channel) + " " + titleAction,
		Body:      body,
		Reference: strings.ToUpper(channel) + "-" + shortUUID,
		URL:       target,
	}
}
