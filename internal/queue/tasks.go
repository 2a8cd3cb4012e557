package queue

const (
	TypeAccentDetect = "accent:detect"

	// QueueDetection is the asynq queue detection jobs are enqueued on.
	QueueDetection = "detection"
)

// AccentDetectPayload carries the uploaded clip itself; clips are bounded by
// the upload limit so they fit in a task.
type AccentDetectPayload struct {
	JobID   string `json:"job_id"`
	Subject string `json:"subject,omitempty"`
	Audio   []byte `json:"audio"`
}
