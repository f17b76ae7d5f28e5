package hrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ErrMissingToken reports a login response without a bearer token.
var ErrMissingToken = errors.New("no token in login response")

// Employees lists employees.
func (a *Caller) Employees(ctx context.Context) ([]Employee, error) {
	return list[Employee](ctx, a, "/employes", nil)
}

// Employee fetches one employee.
func (a *Caller) Employee(ctx context.Context, id int64) (*Employee, error) {
	var out Employee
	if err := a.get(ctx, idPath("/employes/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateEmployee creates an employe account.
func (a *Caller) CreateEmployee(ctx context.Context, in CreateEmployeeRequest) (*Employee, error) {
	var out Employee
	if err := a.do(ctx, request{method: http.MethodPost, path: "/employes", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateEmployee applies a partial update.
func (a *Caller) UpdateEmployee(ctx context.Context, id int64, in UpdateEmployeeRequest) (*Employee, error) {
	var out Employee
	if err := a.do(ctx, request{method: http.MethodPut, path: idPath("/employes/%d", id), body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeactivateEmployee soft-deletes an employee.
func (a *Caller) DeactivateEmployee(ctx context.Context, id int64) error {
	return a.do(ctx, request{method: http.MethodDelete, path: idPath("/employes/%d", id)}, nil)
}

// ReactivateEmployee restores a deactivated employee.
func (a *Caller) ReactivateEmployee(ctx context.Context, id int64) (*Employee, error) {
	var out Employee
	if err := a.do(ctx, request{method: http.MethodPost, path: idPath("/employes/%d/reactivate", id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Departments lists departments.
func (a *Caller) Departments(ctx context.Context) ([]Department, error) {
	return list[Department](ctx, a, "/departements", nil)
}

// Department fetches one department.
func (a *Caller) Department(ctx context.Context, id int64) (*Department, error) {
	var out Department
	if err := a.get(ctx, idPath("/departements/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDepartment creates a department.
func (a *Caller) CreateDepartment(ctx context.Context, in DepartmentRequest) (*Department, error) {
	var out Department
	if err := a.do(ctx, request{method: http.MethodPost, path: "/departements", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateDepartment replaces a department.
func (a *Caller) UpdateDepartment(ctx context.Context, id int64, in DepartmentRequest) (*Department, error) {
	var out Department
	if err := a.do(ctx, request{method: http.MethodPut, path: idPath("/departements/%d", id), body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DepartmentBalances returns the leave balances of the caller's department.
func (a *Caller) DepartmentBalances(ctx context.Context) ([]DepartmentBalance, error) {
	return list[DepartmentBalance](ctx, a, "/conges/soldes/departement", nil)
}

// Jobs lists postes.
func (a *Caller) Jobs(ctx context.Context) ([]Job, error) {
	return list[Job](ctx, a, "/postes", nil)
}

// JobsByDepartment lists the postes of a department.
func (a *Caller) JobsByDepartment(ctx context.Context, departmentID int64) ([]Job, error) {
	return list[Job](ctx, a, idPath("/postes/departement/%d", departmentID), nil)
}

// Job fetches one poste.
func (a *Caller) Job(ctx context.Context, id int64) (*Job, error) {
	var out Job
	if err := a.get(ctx, idPath("/postes/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateJob creates a poste.
func (a *Caller) CreateJob(ctx context.Context, in JobRequest) (*Job, error) {
	var out Job
	if err := a.do(ctx, request{method: http.MethodPost, path: "/postes", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateJob replaces a poste.
func (a *Caller) UpdateJob(ctx context.Context, id int64, in JobRequest) (*Job, error) {
	var out Job
	if err := a.do(ctx, request{method: http.MethodPut, path: idPath("/postes/%d", id), body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteJob removes a poste.
func (a *Caller) DeleteJob(ctx context.Context, id int64) error {
	return a.do(ctx, request{method: http.MethodDelete, path: idPath("/postes/%d", id)}, nil)
}

// AffectationHistory lists department and poste moves, newest first.
func (a *Caller) AffectationHistory(ctx context.Context) ([]AffectationChange, error) {
	return list[AffectationChange](ctx, a, "/history", nil)
}

// MyLeaves lists the caller's leave requests.
func (a *Caller) MyLeaves(ctx context.Context) ([]Leave, error) {
	return list[Leave](ctx, a, "/conges/mes-conges", nil)
}

// PendingLeaves lists leave requests awaiting the caller's decision.
func (a *Caller) PendingLeaves(ctx context.Context) ([]Leave, error) {
	return list[Leave](ctx, a, "/conges/en-attente", nil)
}

// AllLeaves lists every leave request.
func (a *Caller) AllLeaves(ctx context.Context) ([]Leave, error) {
	return list[Leave](ctx, a, "/conges/all", nil)
}

// Leave fetches one leave request.
func (a *Caller) Leave(ctx context.Context, id int64) (*Leave, error) {
	var out Leave
	if err := a.get(ctx, idPath("/conges/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateLeave submits a leave request.
func (a *Caller) CreateLeave(ctx context.Context, in CreateLeaveRequest) (*Leave, error) {
	var out Leave
	if err := a.do(ctx, request{method: http.MethodPost, path: "/conges", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelLeave cancels one of the caller's pending requests.
func (a *Caller) CancelLeave(ctx context.Context, id int64) error {
	return a.do(ctx, request{method: http.MethodDelete, path: idPath("/conges/%d", id)}, nil)
}

// ValidateLeave approves or rejects a pending request.
func (a *Caller) ValidateLeave(ctx context.Context, id int64, in ValidateLeaveRequest) (*Leave, error) {
	var out Leave
	if err := a.do(ctx, request{method: http.MethodPut, path: idPath("/conges/%d/valider", id), body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyBalances lists the caller's leave balances.
func (a *Caller) MyBalances(ctx context.Context) ([]LeaveBalance, error) {
	return list[LeaveBalance](ctx, a, "/conges/mes-soldes", nil)
}

// LeaveTypes lists the configured leave types.
func (a *Caller) LeaveTypes(ctx context.Context) ([]LeaveType, error) {
	return list[LeaveType](ctx, a, "/conges/types", nil)
}

// AdminLeaveTypes lists the leave types as administered, inactive ones excluded.
func (a *Caller) AdminLeaveTypes(ctx context.Context) ([]LeaveType, error) {
	return list[LeaveType](ctx, a, "/admin/type-conges", nil)
}

// CreateLeaveType creates a leave type.
func (a *Caller) CreateLeaveType(ctx context.Context, in LeaveTypeRequest) (*LeaveType, error) {
	var out LeaveType
	if err := a.do(ctx, request{method: http.MethodPost, path: "/admin/type-conges", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLeaveType replaces a leave type.
func (a *Caller) UpdateLeaveType(ctx context.Context, id int64, in LeaveTypeRequest) (*LeaveType, error) {
	var out LeaveType
	if err := a.do(ctx, request{method: http.MethodPut, path: idPath("/admin/type-conges/%d", id), body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteLeaveType deactivates a leave type.
func (a *Caller) DeleteLeaveType(ctx context.Context, id int64) error {
	return a.do(ctx, request{method: http.MethodDelete, path: idPath("/admin/type-conges/%d", id)}, nil)
}

// LeaveHistory lists the status changes of one leave request.
func (a *Caller) LeaveHistory(ctx context.Context, id int64) ([]LeaveHistoryEntry, error) {
	return list[LeaveHistoryEntry](ctx, a, idPath("/conges/%d/historique", id), nil)
}

// AuditHistory returns one page of the leave audit trail.
func (a *Caller) AuditHistory(ctx context.Context, page, size int, filter AuditFilter) (*AuditPage, error) {
	if size <= 0 {
		size = 20
	}
	query := url.Values{}
	query.Set("page", strconv.Itoa(max(page, 0)))
	query.Set("size", strconv.Itoa(size))
	if filter.Acteur != "" {
		query.Set("acteur", filter.Acteur)
	}
	if filter.StatutNouveau != "" {
		query.Set("statusNouveau", string(filter.StatutNouveau))
	}
	if filter.DateDebut != "" {
		query.Set("dateDebut", filter.DateDebut)
	}
	if filter.DateFin != "" {
		query.Set("dateFin", filter.DateFin)
	}
	if filter.CongeID > 0 {
		query.Set("congeId", strconv.FormatInt(filter.CongeID, 10))
	}

	var raw json.RawMessage
	if err := a.get(ctx, "/audit-history", query, &raw); err != nil {
		return nil, err
	}
	return decodeAuditPage(raw)
}

func decodeAuditPage(raw json.RawMessage) (*AuditPage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p Page[LeaveHistoryEntry]
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, fmt.Errorf("hrapi: decode audit page: %w", err)
		}
		out := &AuditPage{
			Content:       p.Content,
			TotalPages:    p.TotalPages,
			TotalElements: p.TotalElements,
			CurrentPage:   p.Number,
			PageSize:      p.Size,
		}
		if p.CurrentPage != nil {
			out.CurrentPage = *p.CurrentPage
		}
		if p.PageSize != nil {
			out.PageSize = *p.PageSize
		}
		if out.Content == nil {
			out.Content = []LeaveHistoryEntry{}
		}
		return out, nil
	}
	items, err := decodeList[LeaveHistoryEntry](trimmed)
	if err != nil {
		return nil, err
	}
	totalPages := 0
	if len(items) > 0 {
		totalPages = 1
	}
	return &AuditPage{
		Content:       items,
		TotalPages:    totalPages,
		TotalElements: int64(len(items)),
		CurrentPage:   0,
		PageSize:      len(items),
	}, nil
}

// Notifications lists the caller's notifications.
func (a *Caller) Notifications(ctx context.Context) ([]Notification, error) {
	return list[Notification](ctx, a, "/notifications", nil)
}

// UnreadCount returns the number of unread notifications.
func (a *Caller) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := a.get(ctx, "/notifications/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// MarkNotificationRead marks one notification read.
func (a *Caller) MarkNotificationRead(ctx context.Context, id int64) error {
	return a.do(ctx, request{method: http.MethodPut, path: idPath("/notifications/%d/read", id)}, nil)
}

// MarkAllNotificationsRead marks every notification read and returns how many changed.
func (a *Caller) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	var out struct {
		MarkedCount int `json:"markedCount"`
	}
	if err := a.do(ctx, request{method: http.MethodPost, path: "/notifications/mark-all-read"}, &out); err != nil {
		return 0, err
	}
	return out.MarkedCount, nil
}

// DeleteNotification removes a notification.
func (a *Caller) DeleteNotification(ctx context.Context, id int64) error {
	return a.do(ctx, request{method: http.MethodDelete, path: idPath("/notifications/%d", id)}, nil)
}

// NotificationPreferences returns the caller's delivery channels.
func (a *Caller) NotificationPreferences(ctx context.Context) (*NotificationPreferences, error) {
	var out NotificationPreferences
	if err := a.get(ctx, "/users/me/notification-preferences", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateNotificationPreferences stores the caller's delivery channels.
func (a *Caller) UpdateNotificationPreferences(ctx context.Context, in NotificationPreferences) (*NotificationPreferences, error) {
	var out NotificationPreferences
	if err := a.do(ctx, request{method: http.MethodPost, path: "/users/me/notification-preferences", body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendTestNotification sends a sample notification on one channel.
func (a *Caller) SendTestNotification(ctx context.Context, in TestNotificationRequest) error {
	return a.do(ctx, request{method: http.MethodPost, path: "/users/me/test-notification", body: in}, nil)
}
