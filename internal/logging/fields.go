package logging

const (
	// FieldComponent names the package or subsystem emitting the record.
	FieldComponent = "component"
	// FieldEventType is a stable machine-readable label for the event.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact describes the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldErrorKind carries the faults taxonomy label of a failure.
	FieldErrorKind = "error_kind"
	FieldDevice    = "device"
	FieldContentID = "content_id"
	FieldArchive   = "archive"
	FieldEntry     = "entry"
)
