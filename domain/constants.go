package domain

const (
	// Prompt envelope expected by the Video-LLaVA chat template
	PromptPrefix = "USER: <video>\n"
	PromptSuffix = " ASSISTANT:"

	// Record fields
	FieldPromptResult  = "promptResult"
	FieldPromptError   = "promptError"
	FieldSummaryResult = "summaryResult"
	FieldSummaryError  = "summaryError"

	DefaultTargetField = FieldPromptResult

	// Object metadata keys (matched case-insensitively)
	MetadataUserID  = "userid"
	MetadataVideoID = "videoid"

	// Record key layout shared with the API that owns the table
	RecordPartitionKeyFormat = "$main#userId_%s"
	RecordSortKeyFormat      = "$user#videos_1#id_%s"

	// Run statuses
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

var errorFields = map[string]string{
	FieldPromptResult:  FieldPromptError,
	FieldSummaryResult: FieldSummaryError,
}

// ErrorFieldFor returns the sibling error field of a result field.
func ErrorFieldFor(field string) (string, bool) {
	errField, ok := errorFields[field]
	return errField, ok
}
