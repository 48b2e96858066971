package notify

import (
	"context"

	"github.com/google/uuid"
)

// Message templates the scheduling engine emits. Rendering and localization
// belong to the delivery side; the engine only names the template and its
// variables.
const (
	TemplateAppointmentCreated     = "appointment_created"
	TemplateAppointmentConfirmed   = "appointment_confirmed"
	TemplateAppointmentRescheduled = "appointment_rescheduled"
	TemplateAppointmentCancelled   = "appointment_cancelled"
	TemplateAppointmentCompleted   = "appointment_completed"
	TemplateAppointmentNoShow      = "appointment_no_show"
	TemplateDoctorTransferred      = "doctor_transferred"
	TemplateRescheduleRequired     = "reschedule_required"
	TemplateRescheduleReminder     = "reschedule_reminder"
)

// Notifier enqueues a notification request. Dispatch is fire-and-forget from
// the engine's perspective; delivery guarantees belong to the consumer.
type Notifier interface {
	Enqueue(ctx context.Context, recipientID uuid.UUID, template string, vars map[string]string) error
}
