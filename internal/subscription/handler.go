package subscription

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kwetu-labs/whatsdrip/internal/domain"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/ctxlog"
	"github.com/kwetu-labs/whatsdrip/internal/pkg/httputil"
)

// DefaultPhoneField is the Sendy custom field carrying the subscriber's
// phone number unless configured otherwise.
const DefaultPhoneField = "Phone"

// HTTPHandler exposes the inbound webhook endpoints and the admin
// configuration API.
type HTTPHandler struct {
	service    *Service
	registry   *Registry
	mirror     *MirrorHandler
	validator  *validator.Validate
	phoneField string
	publicURL  string
}

// NewHTTPHandler creates the webhook HTTP surface. publicURL is the
// externally reachable root used when composing webhook URLs for the email
// provider; phoneField names the provider's custom field holding the phone
// number.
func NewHTTPHandler(service *Service, registry *Registry, mirror *MirrorHandler, publicURL, phoneField string) *HTTPHandler {
	if phoneField == "" {
		phoneField = DefaultPhoneField
	}
	return &HTTPHandler{
		service:    service,
		registry:   registry,
		mirror:     mirror,
		validator:  validator.New(),
		phoneField: phoneField,
		publicURL:  strings.TrimRight(publicURL, "/"),
	}
}

// RegisterWebhookRoutes registers the unauthenticated endpoints the email
// provider calls.
func (h *HTTPHandler) RegisterWebhookRoutes(r chi.Router) {
	r.Route("/hooks/{token}", func(r chi.Router) {
		r.Post("/subscribe", h.Subscribe)
		r.Post("/autoresponder", h.Autoresponder)
	})
}

// RegisterAdminRoutes registers the configuration API (requires auth).
func (h *HTTPHandler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/webhooks", func(r chi.Router) {
		r.Get("/", h.ListWebhooks)
		r.Post("/", h.CreateWebhook)
		r.Get("/{token}", h.GetWebhook)
		r.Delete("/{token}", h.DeleteWebhook)
	})
}

// Subscribe handles POST /hooks/{token}/subscribe. The email provider
// posts form-encoded subscription events.
func (h *HTTPHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := ctxlog.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		httputil.Error(w, http.StatusBadRequest, "malformed form body")
		return
	}

	trigger := r.PostFormValue("trigger")
	if trigger == "" {
		httputil.Error(w, http.StatusBadRequest, "missing trigger data")
		return
	}
	if trigger != "subscribe" {
		logger.Debug("ignoring non-subscription trigger", "trigger", trigger)
		httputil.JSON(w, http.StatusOK, &Result{
			Status:  "ignored",
			Message: "Not a subscription event",
		})
		return
	}

	token := chi.URLParam(r, "token")
	config, err := h.service.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrWebhookNotFound) {
			httputil.Error(w, http.StatusNotFound, "webhook token not found")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "failed to load configuration")
		return
	}

	email := r.PostFormValue("email")
	if email == "" {
		httputil.Error(w, http.StatusBadRequest, "missing subscriber email")
		return
	}

	sub := domain.Subscriber{
		Email:  email,
		Name:   r.PostFormValue("name"),
		Phone:  domain.NormalizePhone(r.PostFormValue(h.phoneField)),
		ListID: config.ListID,
	}

	handler, err := h.registry.Get(config.Mode)
	if err != nil {
		logger.Error("webhook references unregistered mode",
			"token", token,
			"mode", config.Mode,
		)
		httputil.Error(w, http.StatusInternalServerError, "invalid configuration mode")
		return
	}

	result, err := handler.HandleSubscription(ctxlog.With(ctx, "token", token, "mode", config.Mode), sub, config)
	if err != nil {
		logger.Error("subscription handling failed", "token", token, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "internal processing error")
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Autoresponder handles POST /hooks/{token}/autoresponder, the email
// provider's own autoresponder trigger used by mirror mode.
func (h *HTTPHandler) Autoresponder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		httputil.Error(w, http.StatusBadRequest, "malformed form body")
		return
	}

	token := chi.URLParam(r, "token")
	if _, err := h.service.GetByToken(ctx, token); err != nil {
		if errors.Is(err, ErrWebhookNotFound) {
			httputil.Error(w, http.StatusNotFound, "invalid webhook token")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "failed to load configuration")
		return
	}

	event := AutoresponderEvent{
		Email:  r.PostFormValue("email"),
		ListID: r.PostFormValue("list_id"),
		Step:   1,
	}
	if raw := r.PostFormValue("autoresponder_step"); raw != "" {
		if step, err := strconv.Atoi(raw); err == nil {
			event.Step = step
		}
	}

	if event.Email == "" || event.ListID == "" {
		httputil.Error(w, http.StatusBadRequest, "missing email or list_id in webhook data")
		return
	}

	config, err := h.service.GetByList(ctx, event.ListID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			httputil.Error(w, http.StatusNotFound, "list not configured for autoresponder mirroring")
			return
		}
		httputil.Error(w, http.StatusInternalServerError, "failed to load configuration")
		return
	}

	result, err := h.mirror.HandleAutoresponderTrigger(ctxlog.With(ctx, "token", token), event, config)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to process autoresponder webhook")
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// CreateWebhookRequest is the admin request body for creating a webhook.
type CreateWebhookRequest struct {
	ListID   string `json:"list_id" validate:"required"`
	ListName string `json:"list_name"`
	Name     string `json:"webhook_name"`
	Config   struct {
		Mode            domain.Mode       `json:"mode"`
		TemplateID      string            `json:"template_id"`
		Sequence        []domain.Step     `json:"sequence"`
		AutoresponderID string            `json:"autoresponder_id"`
		TemplateMap     map[string]string `json:"template_map"`
	} `json:"config"`
}

// WebhookResponse augments a stored configuration with its derived URLs.
type WebhookResponse struct {
	*WebhookConfig
	WebhookURL              string `json:"webhook_url"`
	AutoresponderWebhookURL string `json:"autoresponder_webhook_url,omitempty"`
}

func (h *HTTPHandler) webhookResponse(config *WebhookConfig) *WebhookResponse {
	resp := &WebhookResponse{
		WebhookConfig: config,
		WebhookURL:    h.publicURL + "/hooks/" + config.Token + "/subscribe",
	}
	if config.Mode == domain.ModeMirror {
		resp.AutoresponderWebhookURL = h.publicURL + "/hooks/" + config.Token + "/autoresponder"
	}
	return resp
}

// CreateWebhook handles POST /webhooks.
func (h *HTTPHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req CreateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	config := &WebhookConfig{
		Name:            req.Name,
		ListID:          req.ListID,
		ListName:        req.ListName,
		Mode:            req.Config.Mode,
		TemplateID:      req.Config.TemplateID,
		Sequence:        req.Config.Sequence,
		AutoresponderID: req.Config.AutoresponderID,
		TemplateMap:     req.Config.TemplateMap,
	}

	created, err := h.service.Create(r.Context(), config)
	if err != nil {
		var validationErr *ValidationError
		switch {
		case errors.As(err, &validationErr):
			httputil.ValidationDetails(w, validationErr.Problems)
		case errors.Is(err, ErrUnknownMode):
			httputil.Error(w, http.StatusBadRequest, "invalid mode")
		default:
			httputil.Error(w, http.StatusInternalServerError, "failed to save configuration")
		}
		return
	}

	ctxlog.FromContext(r.Context()).Info("webhook configuration created",
		"token", created.Token,
		"list_id", created.ListID,
		"mode", created.Mode,
		"by", httputil.GetSubject(r.Context()),
	)
	httputil.JSON(w, http.StatusCreated, h.webhookResponse(created))
}

// ListWebhooks handles GET /webhooks.
func (h *HTTPHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.List(r.Context())
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "failed to load configurations")
		return
	}

	result := make([]*WebhookResponse, 0, len(configs))
	for _, config := range configs {
		result = append(result, h.webhookResponse(config))
	}
	httputil.JSON(w, http.StatusOK, result)
}

var webhookErrorMappings = []httputil.ErrorMapping{
	{Error: ErrWebhookNotFound, Status: http.StatusNotFound, Message: "webhook not found"},
}

// GetWebhook handles GET /webhooks/{token}.
func (h *HTTPHandler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	config, err := h.service.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, webhookErrorMappings)
		return
	}
	httputil.JSON(w, http.StatusOK, h.webhookResponse(config))
}

// DeleteWebhook handles DELETE /webhooks/{token}.
func (h *HTTPHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "token")); err != nil {
		httputil.HandleError(r.Context(), w, err, webhookErrorMappings)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
