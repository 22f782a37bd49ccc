package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/unitask/internal/maxbot"
	"github.com/dukerupert/unitask/internal/middleware"
	"github.com/dukerupert/unitask/internal/model"
	"github.com/dukerupert/unitask/internal/tracker"
)

const maxWebhookBodySize = 1 << 20

// UserUpserter creates or renames the local user behind a bot user id.
type UserUpserter interface {
	UpsertFromBot(uuid, username string) (*model.User, bool, error)
}

// ReadNotifier is the tracker surface the webhook drives.
type ReadNotifier interface {
	NotifyRead(messageID string) (tracker.TrackedMessage, bool)
	Remove(messageID string) bool
}

// botUser ids arrive as numbers or strings depending on the platform
// version, so they are kept raw and converted on use.
type botUser struct {
	UserID    any    `json:"user_id"`
	ID        any    `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func (u *botUser) externalID() string {
	if id, ok := maxbot.ScalarID(u.UserID); ok {
		return id
	}
	id, _ := maxbot.ScalarID(u.ID)
	return id
}

type update struct {
	UpdateType string   `json:"update_type" validate:"required"`
	Timestamp  int64    `json:"timestamp"`
	User       *botUser `json:"user"`
	Message    *struct {
		Sender *botUser `json:"sender"`
	} `json:"message"`
	Callback *struct {
		User *botUser `json:"user"`
	} `json:"callback"`
}

// WebhookHandler receives platform updates. It always answers 200 so the
// platform does not redeliver; problems are only logged.
type WebhookHandler struct {
	users    UserUpserter
	tracker  ReadNotifier
	validate *validator.Validate
	logger   *slog.Logger
}

func NewWebhookHandler(users UserUpserter, tr ReadNotifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		users:    users,
		tracker:  tr,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", middleware.GetRequestID(r.Context()))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		logger.Error("read webhook body", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	var upd update
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&upd); err != nil {
		logger.Warn("webhook body is not valid JSON", "error", err, "size", len(body))
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	if err := h.validate.Struct(upd); err != nil {
		logger.Warn("webhook update rejected", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	logger = logger.With("update_type", upd.UpdateType)
	switch upd.UpdateType {
	case "bot_started":
		h.botStarted(logger, upd.User)
	case "message_read":
		h.messageRead(logger, body)
	case "message_removed":
		h.messageRemoved(logger, body)
	case "message_created":
		if upd.Message != nil && upd.Message.Sender != nil {
			logger = logger.With("sender", upd.Message.Sender.externalID())
		}
		logger.Info("webhook update")
	case "message_callback":
		if upd.Callback != nil && upd.Callback.User != nil {
			logger = logger.With("sender", upd.Callback.User.externalID())
		}
		logger.Info("webhook update")
	default:
		logger.Info("webhook update")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *WebhookHandler) botStarted(logger *slog.Logger, u *botUser) {
	if u == nil {
		logger.Warn("bot_started without user")
		return
	}
	id := u.externalID()
	if id == "" {
		logger.Warn("bot_started user has no id")
		return
	}

	user, changed, err := h.users.UpsertFromBot(id, deriveUsername(u, id))
	if err != nil {
		logger.Error("upsert bot user", "uuid", id, "error", err)
		return
	}
	if changed {
		logger.Info("bot user saved", "user_id", user.ID, "username", user.Username, "uuid", user.UUID)
		return
	}
	logger.Debug("bot user unchanged", "user_id", user.ID)
}

func (h *WebhookHandler) messageRead(logger *slog.Logger, body []byte) {
	id := maxbot.ExtractMessageID(body)
	if id == "" {
		logger.Warn("message_read without message id")
		return
	}
	if _, ok := h.tracker.NotifyRead(id); ok {
		logger.Info("read signal applied", "message_id", id)
	}
}

func (h *WebhookHandler) messageRemoved(logger *slog.Logger, body []byte) {
	id := maxbot.ExtractMessageID(body)
	if id == "" {
		return
	}
	if h.tracker.Remove(id) {
		logger.Info("tracked message removed on platform", "message_id", id)
	}
}

// deriveUsername prefers the platform username and otherwise builds
// max_<id>_<full name>.
func deriveUsername(u *botUser, id string) string {
	if u.Username != "" {
		return u.Username
	}
	first := u.FirstName
	if first == "" {
		first = u.Name
	}
	full := strings.TrimSpace(first + " " + u.LastName)
	if first == "" {
		full = "user_" + id
	}
	return "max_" + id + "_" + full
}
