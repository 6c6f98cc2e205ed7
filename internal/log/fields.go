package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldMethod      = "method"
	FieldURL         = "url"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldRequestID   = "request_id"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorKind   = "error_kind"
	FieldOperation   = "operation"
	FieldResource    = "resource"
	FieldRecordID    = "record_id"
	FieldCount       = "count"
	FieldUsername    = "username"
	FieldTarget      = "target"
	FieldExpenseDesc = "expense_description"
	FieldAmountCents = "amount_cents"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentAPI        = "api"
	ComponentSession    = "session"
	ComponentGuard      = "guard"
	ComponentCollection = "collection"
	ComponentForm       = "form"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentSummary    = "summary"
	ComponentBackend    = "backend"
)

// Operations defines standard operation names
const (
	OpLogin    = "login"
	OpLogout   = "logout"
	OpExpire   = "expire"
	OpFetch    = "fetch"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpValidate = "validate"
	OpPublish  = "publish"
	OpExport   = "export"
	OpSave     = "save"
	OpClear    = "clear"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRecord adds the resource and record id of a collection operation
func (f LogFields) WithRecord(resource string, id int64) LogFields {
	f[FieldResource] = resource
	if id != 0 {
		f[FieldRecordID] = id
	}
	return f
}

// WithHTTPRequest adds outbound request fields
func (f LogFields) WithHTTPRequest(method, path string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	return f
}

// WithHTTPResponse adds response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
