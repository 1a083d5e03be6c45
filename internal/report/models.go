package report

import (
	"fmt"
	"time"
)

// =====================================================
// Enums and Constants
// =====================================================

// FieldType represents the data type of a report field
type FieldType string

const (
	FieldTypeText       FieldType = "text"
	FieldTypeNumber     FieldType = "number"
	FieldTypeDate       FieldType = "date"
	FieldTypeDatetime   FieldType = "datetime"
	FieldTypeEmail      FieldType = "email"
	FieldTypePhone      FieldType = "phone"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeSelect     FieldType = "select"
	FieldTypePercentage FieldType = "percentage"
	FieldTypeCurrency   FieldType = "currency"
)

// Aggregation represents an aggregation applied to a field
type Aggregation string

const (
	AggregationSum      Aggregation = "sum"
	AggregationCount    Aggregation = "count"
	AggregationAvg      Aggregation = "avg"
	AggregationMin      Aggregation = "min"
	AggregationMax      Aggregation = "max"
	AggregationDistinct Aggregation = "distinct"
)

// FilterOperator represents filter comparison operators
type FilterOperator string

const (
	OperatorEquals       FilterOperator = "equals"
	OperatorNotEquals    FilterOperator = "not_equals"
	OperatorContains     FilterOperator = "contains"
	OperatorNotContains  FilterOperator = "not_contains"
	OperatorStartsWith   FilterOperator = "starts_with"
	OperatorEndsWith     FilterOperator = "ends_with"
	OperatorGreaterThan  FilterOperator = "greater_than"
	OperatorLessThan     FilterOperator = "less_than"
	OperatorGreaterEqual FilterOperator = "greater_equal"
	OperatorLessEqual    FilterOperator = "less_equal"
	OperatorBetween      FilterOperator = "between"
	OperatorIn           FilterOperator = "in"
	OperatorNotIn        FilterOperator = "not_in"
	OperatorIsNull       FilterOperator = "is_null"
	OperatorIsNotNull    FilterOperator = "is_not_null"
)

// SortDirection represents sort order
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// WidgetType represents dashboard widget types
type WidgetType string

const (
	WidgetTypeChart    WidgetType = "chart"
	WidgetTypeMetric   WidgetType = "metric"
	WidgetTypeTable    WidgetType = "table"
	WidgetTypeMap      WidgetType = "map"
	WidgetTypeCalendar WidgetType = "calendar"
	WidgetTypeProgress WidgetType = "progress"
	WidgetTypeText     WidgetType = "text"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	ExportFormatPDF   ExportFormat = "pdf"
	ExportFormatExcel ExportFormat = "xlsx"
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatPPTX  ExportFormat = "pptx"
	ExportFormatDocx  ExportFormat = "docx"
	ExportFormatJSON  ExportFormat = "json"
	ExportFormatXML   ExportFormat = "xml"
	ExportFormatPNG   ExportFormat = "png"
)

// FileExtension returns the file extension for the format, without a dot.
func (f ExportFormat) FileExtension() string {
	return string(f)
}

// DeliveryMethod represents how a finished export reaches the user
type DeliveryMethod string

const (
	DeliveryDownload DeliveryMethod = "download"
	DeliveryEmail    DeliveryMethod = "email"
	DeliverySchedule DeliveryMethod = "schedule"
)

// ScheduleType represents the recurrence of a scheduled report
type ScheduleType string

const (
	ScheduleManual  ScheduleType = "manual"
	ScheduleOnce    ScheduleType = "once"
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
	ScheduleCron    ScheduleType = "cron"
)

// ScheduleDeliveryMethod represents delivery channels for scheduled reports
type ScheduleDeliveryMethod string

const (
	ScheduleDeliveryEmail      ScheduleDeliveryMethod = "email"
	ScheduleDeliveryWebhook    ScheduleDeliveryMethod = "webhook"
	ScheduleDeliveryFTP        ScheduleDeliveryMethod = "ftp"
	ScheduleDeliveryFilesystem ScheduleDeliveryMethod = "filesystem"
	ScheduleDeliveryS3         ScheduleDeliveryMethod = "s3"
)

// SubscriptionType represents what a realtime subscription watches
type SubscriptionType string

const (
	SubscriptionReport    SubscriptionType = "report"
	SubscriptionDashboard SubscriptionType = "dashboard"
	SubscriptionWidget    SubscriptionType = "widget"
	SubscriptionChart     SubscriptionType = "chart"
)

// SubscriptionStatus represents the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionPending SubscriptionStatus = "pending"
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionError   SubscriptionStatus = "error"
	SubscriptionClosed  SubscriptionStatus = "closed"
)

// =====================================================
// Report Configuration
// =====================================================

// ReportConfig is the declarative description of a report. The order of
// Fields and Sorting is significant (it controls output column and row
// order); the order of Filters and Grouping is not.
type ReportConfig struct {
	Fields   []Field   `json:"fields"`
	Filters  []Filter  `json:"filters,omitempty"`
	Grouping []Group   `json:"grouping,omitempty"`
	Sorting  []Sort    `json:"sorting,omitempty"`
}

// Field is one selectable, typed data column in a report. ID is generated
// once at creation and never recomputed; Alias defaults to the display name
// (or the raw field name) but is independently editable afterwards.
type Field struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	Field       string      `json:"field"`
	Type        FieldType   `json:"type"`
	Alias       string      `json:"alias"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
	Category    string      `json:"category,omitempty"`
}

// NewFieldID derives a field id from its source, name and creation time.
func NewFieldID(source, field string, created time.Time) string {
	return fmt.Sprintf("%s_%s_%d", source, field, created.UnixNano())
}

// Filter is a predicate over a field. Value is required for every operator
// except is_null/is_not_null; between requires a two-element array and
// in/not_in require an array.
type Filter struct {
	ID       string         `json:"id"`
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// Group describes a grouping dimension.
type Group struct {
	Field  string `json:"field"`
	Source string `json:"source"`
}

// Sort describes an output ordering.
type Sort struct {
	Field     string        `json:"field"`
	Source    string        `json:"source"`
	Direction SortDirection `json:"direction,omitempty"`
}

// Widget is a dashboard tile configuration. Config keys required depend on
// the widget type and are enforced by the validation engine.
type Widget struct {
	Type   WidgetType     `json:"type"`
	Title  string         `json:"title,omitempty"`
	Config map[string]any `json:"config"`
}

// DashboardConfig is a set of widgets.
type DashboardConfig struct {
	Name    string   `json:"name,omitempty"`
	Widgets []Widget `json:"widgets"`
}

// =====================================================
// Export
// =====================================================

// ExportOptions carries format-specific export options.
type ExportOptions struct {
	FileName string `json:"file_name,omitempty"`

	// csv
	Delimiter string `json:"delimiter,omitempty"`
	Encoding  string `json:"encoding,omitempty"`

	// pdf / docx / pptx
	PageSize    string `json:"page_size,omitempty"`
	Orientation string `json:"orientation,omitempty"`

	// xlsx
	SheetName    string `json:"sheet_name,omitempty"`
	FreezeHeader bool   `json:"freeze_header,omitempty"`

	// json / xml
	Indent string `json:"indent,omitempty"`

	// png
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// ExportJob is one completed (or failed) export, kept in a bounded
// most-recent-first history that lives only for the session.
type ExportJob struct {
	ID        string       `json:"id"`
	Format    ExportFormat `json:"format"`
	FileName  string       `json:"file_name"`
	Timestamp time.Time    `json:"timestamp"`
	SizeBytes int64        `json:"size_bytes,omitempty"`
	Status    string       `json:"status"` // completed | failed
	Error     string       `json:"error,omitempty"`
}

const (
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)

// =====================================================
// Schedules
// =====================================================

// DeliveryConfig carries delivery-method specific settings for a schedule.
type DeliveryConfig struct {
	Method     ScheduleDeliveryMethod `json:"method"`
	Recipients []string               `json:"recipients,omitempty"`
	WebhookURL string                 `json:"webhook_url,omitempty"`
	FTPHost    string                 `json:"ftp_host,omitempty"`
	FTPUser    string                 `json:"ftp_user,omitempty"`
	FTPPass    string                 `json:"ftp_password,omitempty"`
	Path       string                 `json:"path,omitempty"`
	Bucket     string                 `json:"bucket,omitempty"`
	KeyPrefix  string                 `json:"key_prefix,omitempty"`
}

// ScheduleConfig describes when and how a report is re-exported.
type ScheduleConfig struct {
	Type           ScheduleType   `json:"type"`
	CronExpression string         `json:"cron_expression,omitempty"`
	Timezone       string         `json:"timezone,omitempty"`
	Format         ExportFormat   `json:"format"`
	Delivery       DeliveryConfig `json:"delivery"`
}

// =====================================================
// Realtime subscriptions
// =====================================================

// SubscribeRequest is the client-held copy of a subscribe action.
type SubscribeRequest struct {
	Type            SubscriptionType `json:"type"`
	Config          map[string]any   `json:"config"`
	UpdateFrequency int              `json:"update_frequency,omitempty"` // seconds
	AutoRefresh     bool             `json:"auto_refresh,omitempty"`
}

// Subscription tracks one server-side subscription locally. The ID is
// assigned by the server and unknown until the subscribe acknowledgment.
type Subscription struct {
	ID          string             `json:"id"`
	Config      SubscribeRequest   `json:"config"`
	Status      SubscriptionStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdateCount int                `json:"update_count"`
	ErrorCount  int                `json:"error_count"`
	LastUpdate  *time.Time         `json:"last_update,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
}

// ResultSet is tabular report data as returned by preview/execute calls and
// structured exports.
type ResultSet struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Total   int              `json:"total,omitempty"`
}
