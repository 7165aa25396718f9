package api

import (
	"time"

	"github.com/LeventeLantos/safety-checkin/internal/attach"
	"github.com/LeventeLantos/safety-checkin/internal/model"
)

type attachmentView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	SizeLabel string `json:"sizeLabel"`
}

type checkinView struct {
	ID             string            `json:"id"`
	Message        string            `json:"message"`
	Recipients     []model.Recipient `json:"recipients"`
	Attachments    []attachmentView  `json:"attachments"`
	DeliveryDate   string            `json:"deliveryDate,omitempty"`
	DeliveryTime   string            `json:"deliveryTime,omitempty"`
	Timezone       string            `json:"timezone,omitempty"`
	Status         string            `json:"status"`
	DeadlineAt     *time.Time        `json:"deadlineAt,omitempty"`
	CreatedAt      *time.Time        `json:"createdAt,omitempty"`
	CheckedInAt    *time.Time        `json:"checkedInAt,omitempty"`
	ReleasedAt     *time.Time        `json:"releasedAt,omitempty"`
	DeliveryFailed bool              `json:"deliveryFailed,omitempty"`
}

func present(rec *model.CheckInRecord) checkinView {
	attachments := make([]attachmentView, 0, len(rec.Attachments))
	for _, ref := range rec.Attachments {
		attachments = append(attachments, attachmentView{
			ID:        ref.ID,
			Name:      ref.Name,
			Size:      ref.Size,
			SizeLabel: attach.FormatSize(ref.Size),
		})
	}

	recipients := rec.Recipients
	if recipients == nil {
		recipients = []model.Recipient{}
	}

	return checkinView{
		ID:             rec.ID,
		Message:        rec.Message,
		Recipients:     recipients,
		Attachments:    attachments,
		DeliveryDate:   rec.Schedule.Date,
		DeliveryTime:   rec.Schedule.TimeOfDay,
		Timezone:       rec.Schedule.Timezone,
		Status:         displayStatus(rec),
		DeadlineAt:     rec.DeadlineAt,
		CreatedAt:      rec.CreatedAt,
		CheckedInAt:    rec.CheckedInAt,
		ReleasedAt:     rec.ReleasedAt,
		DeliveryFailed: rec.DeliveryFailed,
	}
}

func presentAll(recs []model.CheckInRecord) []checkinView {
	out := make([]checkinView, 0, len(recs))
	for i := range recs {
		out = append(out, present(&recs[i]))
	}
	return out
}

// displayStatus maps storage states onto the labels the authoring
// surface shows. A released record reads "Expired"; the stored status
// never uses that label.
func displayStatus(rec *model.CheckInRecord) string {
	switch rec.Status {
	case model.Draft:
		return "In Review"
	case model.Active:
		return "Active"
	case model.Resolved:
		return "Resolved"
	case model.Released:
		return "Expired"
	default:
		return string(rec.Status)
	}
}
