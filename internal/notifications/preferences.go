package notifications

import (
	"net/http"
	"net/url"

	"github.com/gestionrh/gestionrh-console/internal/hrapi"
	"github.com/gestionrh/gestionrh-console/internal/view"
)

const preferencesPath = "/notifications/preferences"

// Channels lists the delivery channels in display order.
var Channels = []hrapi.NotificationChannel{hrapi.ChannelEmail, hrapi.ChannelSlack, hrapi.ChannelSMS}

// PreferencesFromForm reads the channel checkboxes. Unchecked boxes are absent
// from the form and mean disabled.
func PreferencesFromForm(form url.Values) hrapi.NotificationPreferences {
	return hrapi.NotificationPreferences{
		EmailEnabled: form.Get("emailEnabled") != "",
		SlackEnabled: form.Get("slackEnabled") != "",
		SmsEnabled:   form.Get("smsEnabled") != "",
	}
}

// ParseChannel accepts one of Channels.
func ParseChannel(raw string) (hrapi.NotificationChannel, bool) {
	for _, c := range Channels {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}

type preferencesPageData struct {
	Preferences hrapi.NotificationPreferences
	Channels    []hrapi.NotificationChannel
}

func (h *Handler) preferences(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	prefs, err := rq.API.NotificationPreferences(r.Context())
	if err != nil {
		h.deps.Responder.APIFailure(w, r, err, listPath)
		return
	}
	data := preferencesPageData{Preferences: *prefs, Channels: Channels}
	h.deps.Responder.Render(w, r, http.StatusOK, "pages/notification_preferences.html", h.deps.Responder.Page(r, "Préférences de notification", data))
}

func (h *Handler) savePreferences(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	prefs := PreferencesFromForm(r.PostForm)
	if _, err := rq.API.UpdateNotificationPreferences(r.Context(), prefs); err != nil {
		h.deps.Responder.APIFailure(w, r, err, preferencesPath)
		return
	}
	h.deps.Record(r.Context(), rq.User, "notification.preferences", "utilisateur", rq.User.ID, map[string]any{
		"email": prefs.EmailEnabled,
		"slack": prefs.SlackEnabled,
		"sms":   prefs.SmsEnabled,
	})
	h.deps.Responder.Redirect(w, r, preferencesPath, view.Flash(view.FlashSuccess, "Préférences enregistrées"))
}

func (h *Handler) testChannel(w http.ResponseWriter, r *http.Request) {
	rq := h.deps.For(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	channel, ok := ParseChannel(r.PostFormValue("channel"))
	if !ok {
		h.deps.Responder.Redirect(w, r, preferencesPath, view.Flash(view.FlashError, "Canal inconnu"))
		return
	}
	if err := rq.API.SendTestNotification(r.Context(), hrapi.TestNotificationRequest{Channel: channel}); err != nil {
		h.deps.Responder.APIFailure(w, r, err, preferencesPath)
		return
	}
	h.deps.Responder.Redirect(w, r, preferencesPath, view.Flash(view.FlashInfo, "Notification de test envoyée ("+string(channel)+")"))
}
