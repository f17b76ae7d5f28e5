package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Kind is the error taxonomy bucket.
type Kind string

const (
	KindNetwork     Kind = "NetworkError"
	KindValidation  Kind = "ValidationError"
	KindAuthExpired Kind = "AuthExpired"
	KindForbidden   Kind = "Forbidden"
	KindNotFound    Kind = "NotFound"
	KindConflict    Kind = "Conflict"
	KindServer      Kind = "ServerError"
	KindUnknown     Kind = "UnknownError"
)

// Message keys.
const (
	KeyNetwork        = "network"
	KeyValidation     = "validation"
	KeySessionExpired = "session_expired"
	KeyForbidden      = "forbidden"
	KeyNotFound       = "not_found"
	KeyConflict       = "conflict"
	KeyServerError    = "server_error"
	KeyUnavailable    = "unavailable"
	KeyUnknown        = "unknown"
)

// Message is the classification of one failed call.
type Message struct {
	Key  string
	Kind Kind
	Text string
}

type bucket struct {
	key  string
	kind Kind
}

var statusTable = map[int]bucket{
	http.StatusBadRequest:          {KeyValidation, KindValidation},
	http.StatusUnauthorized:        {KeySessionExpired, KindAuthExpired},
	http.StatusForbidden:           {KeyForbidden, KindForbidden},
	http.StatusNotFound:            {KeyNotFound, KindNotFound},
	http.StatusConflict:            {KeyConflict, KindConflict},
	http.StatusInternalServerError: {KeyServerError, KindServer},
	http.StatusServiceUnavailable:  {KeyUnavailable, KindServer},
}

var messages = map[language.Tag]map[string]string{
	language.French: {
		KeyNetwork:        "Erreur réseau - Vérifiez votre connexion Internet",
		KeyValidation:     "Erreur de validation - Vérifiez vos données",
		KeySessionExpired: "Session expirée - Veuillez vous reconnecter",
		KeyForbidden:      "Vous n'avez pas les permissions pour cette action",
		KeyNotFound:       "Ressource non trouvée",
		KeyConflict:       "Conflit de données - Cette ressource existe déjà",
		KeyServerError:    "Erreur serveur - Réessayez plus tard",
		KeyUnavailable:    "Service indisponible - Le serveur est en maintenance",
		KeyUnknown:        "Une erreur est survenue",
	},
	language.English: {
		KeyNetwork:        "Network error - Check your Internet connection",
		KeyValidation:     "Validation error - Check your input",
		KeySessionExpired: "Session expired - Please sign in again",
		KeyForbidden:      "You do not have permission for this action",
		KeyNotFound:       "Resource not found",
		KeyConflict:       "Data conflict - This resource already exists",
		KeyServerError:    "Server error - Try again later",
		KeyUnavailable:    "Service unavailable - The server is under maintenance",
		KeyUnknown:        "An error occurred",
	},
}

// NewCatalog builds the message catalog for the supported languages with French as fallback.
func NewCatalog() (catalog.Catalog, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.French))
	for tag, entries := range messages {
		for key, text := range entries {
			if err := b.SetString(tag, key, text); err != nil {
				return nil, fmt.Errorf("apierr: catalog %s/%s: %w", tag, key, err)
			}
		}
	}
	return b, nil
}

// Classifier maps failed calls to localized messages.
type Classifier struct {
	printer *message.Printer
}

// NewClassifier returns a classifier printing in lang.
func NewClassifier(lang language.Tag) (*Classifier, error) {
	cat, err := NewCatalog()
	if err != nil {
		return nil, err
	}
	return &Classifier{printer: message.NewPrinter(lang, message.Catalog(cat))}, nil
}

var defaultClassifier = mustClassifier(language.French)

func mustClassifier(lang language.Tag) *Classifier {
	c, err := NewClassifier(lang)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify uses the French classifier.
func Classify(err error) Message {
	return defaultClassifier.Classify(err)
}

// Text returns the localized string for a message key.
func (c *Classifier) Text(key string) string {
	return c.printer.Sprintf(key)
}

// Classify converts err into a message. The first matching rule wins: no
// response, then the payload message, then the status table.
func (c *Classifier) Classify(err error) Message {
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return c.message(KeyNetwork, KindNetwork)
	}
	b, ok := statusTable[apiErr.Response.Status]
	if !ok {
		b = bucket{KeyUnknown, KindUnknown}
	}
	if data := apiErr.Response.Data; data != nil && strings.TrimSpace(data.Message) != "" {
		return Message{Key: b.key, Kind: b.kind, Text: data.Message}
	}
	return c.message(b.key, b.kind)
}

func (c *Classifier) message(key string, kind Kind) Message {
	return Message{Key: key, Kind: kind, Text: c.Text(key)}
}

// ValidationErrors returns the payload's field errors, or an empty map.
func ValidationErrors(err error) map[string]string {
	out := map[string]string{}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil || apiErr.Response.Data == nil {
		return out
	}
	for field, value := range apiErr.Response.Data.Errors {
		switch v := value.(type) {
		case string:
			out[field] = v
		case nil:
			out[field] = ""
		default:
			out[field] = fmt.Sprint(v)
		}
	}
	return out
}

// SortedFields returns the field names of errs in lexical order.
func SortedFields(errs map[string]string) []string {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}
