// internal/workers/underwriting/notify-underwriter/models.go
package notifyunderwriter

type Input struct {
	CaseID string `json:"caseId"`
}

type Output struct {
	NotificationID string   `json:"notificationId"`
	Status         string   `json:"status"`
	Channels       []string `json:"channels"`
	SentAt         string   `json:"sentAt,omitempty"`
}
