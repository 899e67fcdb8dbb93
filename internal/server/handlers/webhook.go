package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/pipeline"
	"git.home.luguber.info/inful/pagesdeploy/internal/server/responses"
)

const (
	maxPayloadBytes = 10 << 20
	zeroCommit      = "0000000000000000000000000000000000000000"
)

// Submitter starts runs.
type Submitter interface {
	Submit(trig pipeline.Trigger) (string, error)
}

// pushEvent is the subset of a GitHub-style push payload the server reads. Gitea and
// Forgejo send the same fields.
type pushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Deleted    bool   `json:"deleted"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
	} `json:"repository"`
}

// WebhookHandlers turns push deliveries for the watched branch into runs.
type WebhookHandlers struct {
	config       pipeline.ConfigSource
	submitter    Submitter
	errorAdapter *errors.HTTPErrorAdapter
}

// NewWebhookHandlers returns webhook handlers reading the watched branch and secret
// from src on every delivery.
func NewWebhookHandlers(src pipeline.ConfigSource, submitter Submitter) *WebhookHandlers {
	return &WebhookHandlers{
		config:       src,
		submitter:    submitter,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// ValidateSignature checks a "sha256=<hex>" HMAC of payload.
func ValidateSignature(payload []byte, signature, secret string) bool {
	hexSum, ok := strings.CutPrefix(signature, "sha256=")
	if !ok || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal([]byte(hexSum), []byte(hex.EncodeToString(mac.Sum(nil))))
}

func eventType(r *http.Request) string {
	for _, h := range []string{"X-GitHub-Event", "X-Gitea-Event", "X-Forgejo-Event"} {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}

// HandlePush receives push webhooks.
func (h *WebhookHandlers) HandlePush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.errorAdapter.WriteErrorResponse(w, r, methodNotAllowed(r, http.MethodPost))
		return
	}
	cfg := h.config.Current()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("failed to read webhook payload").WithCause(err).Build())
		return
	}

	if secret := cfg.Server.WebhookSecret; secret != "" {
		if !ValidateSignature(body, r.Header.Get("X-Hub-Signature-256"), secret) {
			h.errorAdapter.WriteErrorResponse(w, r, errors.AuthError("invalid webhook signature").
				WithContext("remote_addr", r.RemoteAddr).
				Build())
			return
		}
	}

	switch event := eventType(r); event {
	case "ping":
		respond(h.errorAdapter, w, r, http.StatusOK, responses.WebhookResponse{Status: "pong"})
		return
	case "push":
	default:
		slog.Debug("Ignoring webhook event", logfields.Event(event))
		respond(h.errorAdapter, w, r, http.StatusAccepted, responses.WebhookResponse{Status: "ignored", Reason: "unsupported event " + event})
		return
	}

	var push pushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("invalid JSON payload").
			WithCause(err).
			WithContext("content_type", r.Header.Get("Content-Type")).
			Build())
		return
	}

	watched := "refs/heads/" + cfg.Pipeline.Branch
	if push.Ref != watched {
		slog.Info("Ignoring push to unwatched ref", logfields.Ref(push.Ref), logfields.Branch(cfg.Pipeline.Branch))
		respond(h.errorAdapter, w, r, http.StatusAccepted, responses.WebhookResponse{Status: "ignored", Reason: "ref " + push.Ref + " is not watched"})
		return
	}
	if push.Deleted || push.After == zeroCommit {
		respond(h.errorAdapter, w, r, http.StatusAccepted, responses.WebhookResponse{Status: "ignored", Reason: "branch deleted"})
		return
	}

	trig := pipeline.Trigger{
		Kind:   pipeline.TriggerWebhook,
		Ref:    cfg.Pipeline.Branch,
		Commit: push.After,
	}
	if cfg.Source.URL == "" {
		// Only a signed delivery may choose the repository to build.
		if cfg.Server.WebhookSecret == "" {
			h.errorAdapter.WriteErrorResponse(w, r, errors.ConfigError("unsigned webhook cannot select the source repository").
				WithContext("hint", "set source.url or server.webhook_secret").
				Build())
			return
		}
		trig.CloneURL = push.Repository.CloneURL
	}
	runID, err := h.submitter.Submit(trig)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	slog.Info("Push accepted",
		logfields.RunID(runID),
		logfields.Ref(push.Ref),
		logfields.Commit(push.After),
		slog.String("repository", push.Repository.FullName))
	respond(h.errorAdapter, w, r, http.StatusAccepted, responses.WebhookResponse{Status: "accepted", RunID: runID})
}
