package apierr

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func statusErr(status int, payload *Payload) error {
	return &Error{Method: "GET", Path: "/employes", Response: &Response{Status: status, Data: payload}}
}

func TestClassifyNetworkFailure(t *testing.T) {
	cause := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	msg := Classify(&Error{Method: "GET", Path: "/employes", Err: cause})
	assert.Equal(t, KeyNetwork, msg.Key)
	assert.Equal(t, KindNetwork, msg.Kind)
	assert.Equal(t, "Erreur réseau - Vérifiez votre connexion Internet", msg.Text)

	assert.Equal(t, msg, Classify(context.DeadlineExceeded))
}

func TestClassifyStatusTable(t *testing.T) {
	cases := []struct {
		status int
		key    string
		kind   Kind
		text   string
	}{
		{400, KeyValidation, KindValidation, "Erreur de validation - Vérifiez vos données"},
		{401, KeySessionExpired, KindAuthExpired, "Session expirée - Veuillez vous reconnecter"},
		{403, KeyForbidden, KindForbidden, "Vous n'avez pas les permissions pour cette action"},
		{404, KeyNotFound, KindNotFound, "Ressource non trouvée"},
		{409, KeyConflict, KindConflict, "Conflit de données - Cette ressource existe déjà"},
		{500, KeyServerError, KindServer, "Erreur serveur - Réessayez plus tard"},
		{503, KeyUnavailable, KindServer, "Service indisponible - Le serveur est en maintenance"},
		{418, KeyUnknown, KindUnknown, "Une erreur est survenue"},
	}
	for _, tc := range cases {
		msg := Classify(statusErr(tc.status, nil))
		assert.Equal(t, tc.key, msg.Key, "status %d", tc.status)
		assert.Equal(t, tc.kind, msg.Kind, "status %d", tc.status)
		assert.Equal(t, tc.text, msg.Text, "status %d", tc.status)
	}
}

func TestClassifyNotFoundMentionsNonTrouvee(t *testing.T) {
	msg := Classify(statusErr(404, &Payload{}))
	assert.Contains(t, msg.Text, "non trouvée")
	assert.Equal(t, KindNotFound, msg.Kind)
}

func TestClassifyPrefersPayloadMessage(t *testing.T) {
	msg := Classify(statusErr(409, &Payload{Message: "Un employé avec cet email existe déjà"}))
	assert.Equal(t, "Un employé avec cet email existe déjà", msg.Text)
	assert.Equal(t, KindConflict, msg.Kind)

	blank := Classify(statusErr(409, &Payload{Message: "   "}))
	assert.Equal(t, "Conflit de données - Cette ressource existe déjà", blank.Text)
}

func TestClassifyWrappedError(t *testing.T) {
	err := errors.Join(errors.New("load employees"), statusErr(403, nil))
	assert.Equal(t, KindForbidden, Classify(err).Kind)
}

func TestEnglishClassifier(t *testing.T) {
	c, err := NewClassifier(language.English)
	require.NoError(t, err)
	assert.Equal(t, "Resource not found", c.Classify(statusErr(404, nil)).Text)
}

func TestValidationErrors(t *testing.T) {
	err := statusErr(400, &Payload{Errors: map[string]any{"email": "x"}})
	assert.Equal(t, map[string]string{"email": "x"}, ValidationErrors(err))

	assert.Equal(t, map[string]string{}, ValidationErrors(statusErr(400, nil)))
	assert.Equal(t, map[string]string{}, ValidationErrors(errors.New("boom")))
	assert.Equal(t, map[string]string{}, ValidationErrors(nil))
}

func TestFromResponseDecodesPayload(t *testing.T) {
	body := []byte(`{"status":400,"message":"Erreur de validation","errors":{"nom":"obligatoire","age":18},"path":"/api/employes"}`)
	err := FromResponse("POST", "/employes", 400, body)
	require.NotNil(t, err.Response.Data)
	assert.Equal(t, "Erreur de validation", err.Response.Data.Message)
	assert.Equal(t, map[string]string{"nom": "obligatoire", "age": "18"}, ValidationErrors(err))
	assert.Equal(t, 400, StatusOf(err))
	assert.True(t, IsStatus(err, 400))

	plain := FromResponse("GET", "/employes", 502, []byte("<html>bad gateway</html>"))
	assert.Nil(t, plain.Response.Data)
	assert.Equal(t, KindUnknown, Classify(plain).Kind)
}
