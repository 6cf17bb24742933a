package log

// Common field names for structured logging.
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldExpenseID   = "expense_id"
	FieldCategoryID  = "category_id"
	FieldAmountCents = "amount_cents"
	FieldCount       = "count"
)

// Components defines standard component names.
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentAppState = "appstate"
	ComponentSettings = "settings"
	ComponentGateway  = "gateway"
	ComponentStorage  = "storage"
	ComponentBus      = "bus"
	ComponentNotify   = "notify"
	ComponentExport   = "export"
	ComponentCache    = "cache"
)
