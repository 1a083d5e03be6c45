// Package validation checks the structural correctness of report, dashboard,
// export and schedule configurations. Everything here is pure and synchronous:
// a configuration goes in, a Result comes out, and nothing is ever thrown.
// Callers decide whether to block an action on Result.IsValid.
package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"training-portal/reporting-engine/internal/report"
)

// Result contains the outcome of a validation pass. Warnings never block
// save or export; they only surface to the user.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.IsValid = false
}

func (r *Result) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func newResult() *Result {
	return &Result{IsValid: true, Errors: []string{}, Warnings: []string{}}
}

const (
	maxFieldsBeforeWarning  = 50
	maxFiltersBeforeWarning = 20
)

var validFieldTypes = map[report.FieldType]bool{
	report.FieldTypeText: true, report.FieldTypeNumber: true,
	report.FieldTypeDate: true, report.FieldTypeDatetime: true,
	report.FieldTypeEmail: true, report.FieldTypePhone: true,
	report.FieldTypeBoolean: true, report.FieldTypeSelect: true,
	report.FieldTypePercentage: true, report.FieldTypeCurrency: true,
}

var validAggregations = map[report.Aggregation]bool{
	report.AggregationSum: true, report.AggregationCount: true,
	report.AggregationAvg: true, report.AggregationMin: true,
	report.AggregationMax: true, report.AggregationDistinct: true,
}

var validOperators = map[report.FilterOperator]bool{
	report.OperatorEquals: true, report.OperatorNotEquals: true,
	report.OperatorContains: true, report.OperatorNotContains: true,
	report.OperatorStartsWith: true, report.OperatorEndsWith: true,
	report.OperatorGreaterThan: true, report.OperatorLessThan: true,
	report.OperatorGreaterEqual: true, report.OperatorLessEqual: true,
	report.OperatorBetween: true, report.OperatorIn: true,
	report.OperatorNotIn: true, report.OperatorIsNull: true,
	report.OperatorIsNotNull: true,
}

var validExportFormats = map[report.ExportFormat]bool{
	report.ExportFormatPDF: true, report.ExportFormatExcel: true,
	report.ExportFormatCSV: true, report.ExportFormatPPTX: true,
	report.ExportFormatDocx: true, report.ExportFormatJSON: true,
	report.ExportFormatXML: true, report.ExportFormatPNG: true,
}

var validScheduleTypes = map[report.ScheduleType]bool{
	report.ScheduleManual: true, report.ScheduleOnce: true,
	report.ScheduleDaily: true, report.ScheduleWeekly: true,
	report.ScheduleMonthly: true, report.ScheduleCron: true,
}

// widgetRequiredKeys maps each widget type to the config keys it must carry.
var widgetRequiredKeys = map[report.WidgetType][]string{
	report.WidgetTypeChart:    {"chart_type", "data_source", "x_axis", "y_axis"},
	report.WidgetTypeMetric:   {"data_source", "metric"},
	report.WidgetTypeTable:    {"data_source", "columns"},
	report.WidgetTypeMap:      {"data_source", "location_field"},
	report.WidgetTypeCalendar: {"data_source", "date_field"},
	report.WidgetTypeProgress: {"data_source", "value_field"},
	report.WidgetTypeText:     {"content"},
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// invalidFileNameChars are rejected in export file names.
const invalidFileNameChars = `<>:"|?*\/`

// ValidateReportConfig checks a full report configuration: fields, filters,
// grouping and sorting, plus cardinality warnings.
func ValidateReportConfig(cfg *report.ReportConfig) *Result {
	result := newResult()

	if cfg == nil {
		result.addError("At least one field must be selected")
		return result
	}

	if len(cfg.Fields) == 0 {
		result.addError("At least one field must be selected")
	}
	for i, f := range cfg.Fields {
		validateField(f, i, result)
	}

	for i, f := range cfg.Filters {
		validateFilter(f, i, result)
	}

	for i, g := range cfg.Grouping {
		if g.Field == "" || g.Source == "" {
			result.addError("Grouping %d: field and source are required", i+1)
		}
	}

	for i, s := range cfg.Sorting {
		if s.Field == "" || s.Source == "" {
			result.addError("Sorting %d: field and source are required", i+1)
		}
		if s.Direction != "" && s.Direction != report.SortAsc && s.Direction != report.SortDesc {
			result.addError("Sorting %d: direction must be 'asc' or 'desc'", i+1)
		}
	}

	if len(cfg.Fields) > maxFieldsBeforeWarning {
		result.addWarning("More than %d fields selected; report generation may be slow", maxFieldsBeforeWarning)
	}
	if len(cfg.Filters) > maxFiltersBeforeWarning {
		result.addWarning("More than %d filters configured; report generation may be slow", maxFiltersBeforeWarning)
	}

	return result
}

func validateField(f report.Field, index int, result *Result) {
	pos := index + 1

	if f.Field == "" {
		result.addError("Field %d: field name is required", pos)
	}
	if f.Source == "" {
		result.addError("Field %d: source is required", pos)
	}
	if f.Type == "" {
		result.addError("Field %d: type is required", pos)
	} else if !validFieldTypes[f.Type] {
		result.addError("Field %d: invalid type '%s'", pos, f.Type)
	}
	if f.Aggregation != "" && !validAggregations[f.Aggregation] {
		result.addError("Field %d: invalid aggregation '%s'", pos, f.Aggregation)
	}
}

func validateFilter(f report.Filter, index int, result *Result) {
	pos := index + 1

	if f.Field == "" {
		result.addError("Filter %d: field is required", pos)
	}
	if f.Operator == "" {
		result.addError("Filter %d: operator is required", pos)
		return
	}
	if !validOperators[f.Operator] {
		result.addError("Invalid operator '%s'", f.Operator)
		return
	}

	switch f.Operator {
	case report.OperatorIsNull, report.OperatorIsNotNull:
		// No value needed.
	case report.OperatorBetween:
		if f.Value == nil {
			result.addError("Filter %d: value is required for operator '%s'", pos, f.Operator)
			return
		}
		if n, ok := arrayLen(f.Value); !ok || n != 2 {
			result.addError("Filter %d: operator 'between' requires a two-element array value", pos)
		}
	case report.OperatorIn, report.OperatorNotIn:
		if f.Value == nil {
			result.addError("Filter %d: value is required for operator '%s'", pos, f.Operator)
			return
		}
		if _, ok := arrayLen(f.Value); !ok {
			result.addError("Filter %d: operator '%s' requires an array value", pos, f.Operator)
		}
	default:
		if f.Value == nil {
			result.addError("Filter %d: value is required for operator '%s'", pos, f.Operator)
		}
	}
}

// arrayLen reports whether v is a slice or array and, if so, its length.
func arrayLen(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), true
	default:
		return 0, false
	}
}

// ValidateDashboardConfig checks every widget in a dashboard.
func ValidateDashboardConfig(cfg *report.DashboardConfig) *Result {
	result := newResult()
	if cfg == nil {
		result.addError("Dashboard configuration is required")
		return result
	}
	for i, w := range cfg.Widgets {
		validateWidget(w, i, result)
	}
	return result
}

func validateWidget(w report.Widget, index int, result *Result) {
	pos := index + 1

	if w.Type == "" {
		result.addError("Widget %d: type is required", pos)
		return
	}
	required, ok := widgetRequiredKeys[w.Type]
	if !ok {
		result.addError("Widget %d: unknown widget type '%s'", pos, w.Type)
		return
	}
	for _, key := range required {
		val, present := w.Config[key]
		if !present || val == nil {
			result.addError("Widget %d: missing required key '%s' for type '%s'", pos, key, w.Type)
			continue
		}
		if key == "columns" {
			if n, isArr := arrayLen(val); !isArr || n == 0 {
				result.addError("Widget %d: 'columns' must be a non-empty array", pos)
			}
		}
	}
}

// ValidateExportOptions checks an export format and its format-specific
// options, including the file name if one is supplied.
func ValidateExportOptions(format report.ExportFormat, opts report.ExportOptions) *Result {
	result := newResult()

	if format == "" {
		result.addError("Export format is required")
		return result
	}
	if !validExportFormats[format] {
		result.addError("Invalid export format '%s'", format)
		return result
	}

	if opts.FileName != "" && strings.ContainsAny(opts.FileName, invalidFileNameChars) {
		result.addError("File name contains invalid characters")
	}

	switch format {
	case report.ExportFormatCSV:
		if opts.Delimiter != "" && len([]rune(opts.Delimiter)) != 1 {
			result.addError("CSV delimiter must be a single character")
		}
	case report.ExportFormatPDF, report.ExportFormatDocx, report.ExportFormatPPTX:
		if opts.Orientation != "" && opts.Orientation != "portrait" && opts.Orientation != "landscape" {
			result.addError("Page orientation must be 'portrait' or 'landscape'")
		}
		if opts.PageSize != "" {
			switch opts.PageSize {
			case "A3", "A4", "A5", "Letter", "Legal":
			default:
				result.addError("Invalid page size '%s'", opts.PageSize)
			}
		}
	case report.ExportFormatExcel:
		if len(opts.SheetName) > 31 {
			result.addError("Sheet name must be at most 31 characters")
		}
		if strings.ContainsAny(opts.SheetName, `[]:*?/\`) {
			result.addError("Sheet name contains invalid characters")
		}
	case report.ExportFormatJSON, report.ExportFormatXML:
		if opts.Indent != "" && strings.Trim(opts.Indent, " \t") != "" {
			result.addError("Indent must consist of spaces or tabs")
		}
	case report.ExportFormatPNG:
		if opts.Width < 0 || opts.Height < 0 {
			result.addError("Image dimensions must be non-negative")
		}
	}

	return result
}

// ValidateSchedule checks a schedule configuration, including its cron
// expression and delivery settings.
func ValidateSchedule(cfg *report.ScheduleConfig) *Result {
	result := newResult()
	if cfg == nil {
		result.addError("Schedule configuration is required")
		return result
	}

	if cfg.Type == "" {
		result.addError("Schedule type is required")
	} else if !validScheduleTypes[cfg.Type] {
		result.addError("Invalid schedule type '%s'", cfg.Type)
	}

	if cfg.Type == report.ScheduleCron {
		validateCronExpression(cfg.CronExpression, result)
	}

	if cfg.Format != "" && !validExportFormats[cfg.Format] {
		result.addError("Invalid export format '%s'", cfg.Format)
	}

	validateDelivery(cfg.Delivery, result)
	return result
}

func validateCronExpression(expr string, result *Result) {
	if expr == "" {
		result.addError("Cron expression is required for schedule type 'cron'")
		return
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 && len(fields) != 6 {
		result.addError("Cron expression must have 5 or 6 fields")
		return
	}

	var parser cron.Parser
	if len(fields) == 6 {
		parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	} else {
		parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	}
	if _, err := parser.Parse(expr); err != nil {
		result.addError("Invalid cron expression: %s", err.Error())
	}
}

func validateDelivery(d report.DeliveryConfig, result *Result) {
	switch d.Method {
	case "":
		result.addError("Delivery method is required")
	case report.ScheduleDeliveryEmail:
		if len(d.Recipients) == 0 {
			result.addError("Email delivery requires at least one recipient")
		}
		for _, addr := range d.Recipients {
			if !emailPattern.MatchString(addr) {
				result.addError("Invalid email address '%s'", addr)
			}
		}
	case report.ScheduleDeliveryWebhook:
		u, err := url.Parse(d.WebhookURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			result.addError("Webhook delivery requires a valid URL")
		}
	case report.ScheduleDeliveryFTP:
		if d.FTPHost == "" || d.FTPUser == "" || d.FTPPass == "" {
			result.addError("FTP delivery requires host, user and password")
		}
	case report.ScheduleDeliveryFilesystem:
		if d.Path == "" {
			result.addError("Filesystem delivery requires a target path")
		}
	case report.ScheduleDeliveryS3:
		if d.Bucket == "" {
			result.addError("S3 delivery requires a bucket")
		}
	default:
		result.addError("Invalid delivery method '%s'", d.Method)
	}
}
