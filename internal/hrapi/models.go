package hrapi

import (
	"strings"

	"github.com/gestionrh/gestionrh-console/internal/authz"
)

// Page is a Spring Data page.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	Number        int   `json:"number"`
	Size          int   `json:"size"`
	CurrentPage   *int  `json:"currentPage,omitempty"`
	PageSize      *int  `json:"pageSize,omitempty"`
}

// Profile is the signed-in user as returned by login and /auth/me.
type Profile struct {
	ID          int64    `json:"id,omitempty"`
	Token       string   `json:"token,omitempty"`
	Type        string   `json:"type,omitempty"`
	Email       string   `json:"email"`
	NomComplet  string   `json:"nomComplet"`
	Prenom      string   `json:"prenom,omitempty"`
	Nom         string   `json:"nom,omitempty"`
	Telephone   string   `json:"telephone,omitempty"`
	Departement string   `json:"departement,omitempty"`
	Poste       string   `json:"poste,omitempty"`
	Roles       []string `json:"roles"`
}

// User converts the profile into the actor evaluated by authz.
func (p Profile) User() *authz.User {
	name := strings.TrimSpace(p.NomComplet)
	if name == "" {
		name = strings.TrimSpace(p.Prenom + " " + p.Nom)
	}
	return &authz.User{
		ID:         p.ID,
		Email:      p.Email,
		Name:       name,
		Roles:      authz.ParseRoles(p.Roles),
		Department: p.Departement,
	}
}

// Employee is an employe record.
type Employee struct {
	ID           int64    `json:"id"`
	Email        string   `json:"email"`
	Nom          string   `json:"nom"`
	Prenom       string   `json:"prenom"`
	NomComplet   string   `json:"nomComplet"`
	Telephone    string   `json:"telephone,omitempty"`
	Poste        string   `json:"poste,omitempty"`
	Departement  string   `json:"departement,omitempty"`
	Roles        []string `json:"roles"`
	Actif        bool     `json:"actif"`
	DateCreation string   `json:"dateCreation,omitempty"`
}

// DisplayName returns the full name, composing it when the API omitted it.
func (e Employee) DisplayName() string {
	if e.NomComplet != "" {
		return e.NomComplet
	}
	return strings.TrimSpace(e.Prenom + " " + e.Nom)
}

// UpdateEmployeeRequest is a partial employe update.
type UpdateEmployeeRequest struct {
	Email       string   `json:"email,omitempty"`
	Nom         string   `json:"nom,omitempty"`
	Prenom      string   `json:"prenom,omitempty"`
	Telephone   string   `json:"telephone,omitempty"`
	Poste       string   `json:"poste,omitempty"`
	Departement string   `json:"departement,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Actif       *bool    `json:"actif,omitempty"`
}

// CreateEmployeeRequest creates an employe account. Poste and departement
// are names the API resolves.
type CreateEmployeeRequest struct {
	Email       string   `json:"email"`
	MotDePasse  string   `json:"motDePasse"`
	Nom         string   `json:"nom"`
	Prenom      string   `json:"prenom"`
	Telephone   string   `json:"telephone,omitempty"`
	Poste       string   `json:"poste,omitempty"`
	Departement string   `json:"departement,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Actif       *bool    `json:"actif,omitempty"`
}

// AffectationChange records a department or poste move of an employe.
type AffectationChange struct {
	ID                int64  `json:"id"`
	UtilisateurID     int64  `json:"utilisateurId"`
	EmployeNomComplet string `json:"employeNomComplet"`
	OldDepartement    string `json:"oldDepartement,omitempty"`
	NewDepartement    string `json:"newDepartement,omitempty"`
	OldPoste          string `json:"oldPoste,omitempty"`
	NewPoste          string `json:"newPoste,omitempty"`
	DateChangement    string `json:"dateChangement"`
	ModifiePar        string `json:"modifiePar"`
}

// Department is a departement record.
type Department struct {
	ID          int64  `json:"id"`
	Nom         string `json:"nom"`
	Description string `json:"description,omitempty"`
	ManagerID   *int64 `json:"managerId,omitempty"`
	ManagerNom  string `json:"managerNom,omitempty"`
}

// DepartmentRequest creates or replaces a departement.
type DepartmentRequest struct {
	Nom         string `json:"nom"`
	Description string `json:"description,omitempty"`
	ManagerID   *int64 `json:"managerId,omitempty"`
}

// Job is a poste record.
type Job struct {
	ID             int64    `json:"id"`
	Titre          string   `json:"titre"`
	Description    string   `json:"description,omitempty"`
	SalaireMin     *float64 `json:"salaireMin,omitempty"`
	SalaireMax     *float64 `json:"salaireMax,omitempty"`
	DepartementID  int64    `json:"departementId"`
	DepartementNom string   `json:"departementNom,omitempty"`
}

// JobRequest creates or replaces a poste.
type JobRequest struct {
	Titre         string   `json:"titre"`
	Description   string   `json:"description,omitempty"`
	SalaireMin    *float64 `json:"salaireMin,omitempty"`
	SalaireMax    *float64 `json:"salaireMax,omitempty"`
	DepartementID int64    `json:"departementId"`
}

// LeaveStatus is the lifecycle state of a leave request.
type LeaveStatus string

// Leave statuses.
const (
	LeavePending   LeaveStatus = "EN_ATTENTE"
	LeaveApproved  LeaveStatus = "APPROUVE"
	LeaveRejected  LeaveStatus = "REJETE"
	LeaveCancelled LeaveStatus = "ANNULE"
)

// Leave is a conge record.
type Leave struct {
	ID                    int64       `json:"id"`
	DateDebut             string      `json:"dateDebut"`
	DateFin               string      `json:"dateFin"`
	Type                  string      `json:"type"`
	Statut                LeaveStatus `json:"statut"`
	Motif                 string      `json:"motif,omitempty"`
	CommentaireValidation string      `json:"commentaireValidation,omitempty"`
	NombreJours           float64     `json:"nombreJours"`
	EmployeID             int64       `json:"employeId"`
	EmployeNom            string      `json:"employeNom"`
	EmployeEmail          string      `json:"employeEmail"`
	EmployeDepartement    string      `json:"employeDepartement,omitempty"`
	ValidateurID          *int64      `json:"validateurId,omitempty"`
	ValidateurNom         string      `json:"validateurNom,omitempty"`
	DateDemande           string      `json:"dateDemande,omitempty"`
	DateValidation        string      `json:"dateValidation,omitempty"`
}

// CreateLeaveRequest submits a new leave request.
type CreateLeaveRequest struct {
	DateDebut string `json:"dateDebut"`
	DateFin   string `json:"dateFin"`
	Type      string `json:"type"`
	Motif     string `json:"motif"`
}

// ValidateLeaveRequest approves or rejects a pending leave.
type ValidateLeaveRequest struct {
	Statut      LeaveStatus `json:"statut"`
	Commentaire string      `json:"commentaire"`
}

// LeaveType is a type de conge.
type LeaveType struct {
	ID                int64   `json:"id"`
	Nom               string  `json:"nom"`
	Code              string  `json:"code"`
	JoursParAn        float64 `json:"joursParAn"`
	CompteWeekend     bool    `json:"compteWeekend"`
	PeutDeborderSurCP bool    `json:"peutDeborderSurCP"`
}

// LeaveTypeRequest creates or replaces a type de conge.
type LeaveTypeRequest struct {
	Nom               string  `json:"nom"`
	Code              string  `json:"code"`
	JoursParAn        float64 `json:"joursParAn"`
	CompteWeekend     bool    `json:"compteWeekend"`
	PeutDeborderSurCP bool    `json:"peutDeborderSurCP"`
}

// LeaveBalance is a solde de conge.
type LeaveBalance struct {
	ID            int64   `json:"id"`
	TypeCongeNom  string  `json:"typeCongeNom"`
	TypeCongeCode string  `json:"typeCongeCode"`
	JoursRestants float64 `json:"joursRestants"`
	JoursParAn    float64 `json:"joursParAn,omitempty"`
	Annee         int     `json:"annee"`
}

// LeaveHistoryEntry is one audit record of a leave status change.
type LeaveHistoryEntry struct {
	ID               int64       `json:"id"`
	CongeID          int64       `json:"congeId"`
	StatutPrecedent  LeaveStatus `json:"statutPrecedent,omitempty"`
	StatutNouveau    LeaveStatus `json:"statutNouveau"`
	Acteur           string      `json:"acteur"`
	ActeurNom        string      `json:"acteurNom,omitempty"`
	DateModification string      `json:"dateModification"`
	Commentaire      string      `json:"commentaire,omitempty"`
}

// AuditFilter narrows the audit trail.
type AuditFilter struct {
	Acteur        string
	StatutNouveau LeaveStatus
	DateDebut     string
	DateFin       string
	CongeID       int64
}

// AuditPage is one page of the audit trail.
type AuditPage struct {
	Content       []LeaveHistoryEntry
	TotalPages    int
	TotalElements int64
	CurrentPage   int
	PageSize      int
}

// DepartmentBalance groups the balances of one employe in the department stats.
// Departement is "N/A" for employes without one.
type DepartmentBalance struct {
	EmployeID    int64          `json:"employeId"`
	EmployeNom   string         `json:"employeNom"`
	EmployeEmail string         `json:"employeEmail"`
	Departement  string         `json:"departement"`
	Soldes       []LeaveBalance `json:"soldes"`
}

// NotificationType enumerates notification kinds.
type NotificationType string

// Notification kinds.
const (
	NotifyLeaveCreated   NotificationType = "LEAVE_CREATED"
	NotifyLeaveApproved  NotificationType = "LEAVE_APPROVED"
	NotifyLeaveRejected  NotificationType = "LEAVE_REJECTED"
	NotifyLeaveCancelled NotificationType = "LEAVE_CANCELLED"
)

// Notification is an in-app notification.
type Notification struct {
	ID           int64            `json:"id"`
	Type         NotificationType `json:"type"`
	Titre        string           `json:"titre"`
	Message      string           `json:"message"`
	Lue          bool             `json:"lue"`
	CongeID      *int64           `json:"congeId,omitempty"`
	DateCreation string           `json:"dateCreation"`
	EmployeNom   string           `json:"employeNom,omitempty"`
	TypeConge    string           `json:"typeConge,omitempty"`
	ActionPar    string           `json:"actionPar,omitempty"`
}

// NotificationPreferences are the delivery channels of the signed-in user.
type NotificationPreferences struct {
	EmailEnabled bool `json:"emailEnabled"`
	SlackEnabled bool `json:"slackEnabled"`
	SmsEnabled   bool `json:"smsEnabled"`
}

// NotificationChannel names a delivery channel.
type NotificationChannel string

// Delivery channels.
const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSlack NotificationChannel = "SLACK"
	ChannelSMS   NotificationChannel = "SMS"
)

// TestNotificationRequest asks the API to send a sample notification.
type TestNotificationRequest struct {
	Channel NotificationChannel `json:"channel"`
	Message string              `json:"message,omitempty"`
}
