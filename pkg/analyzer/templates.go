package analyzer

import (
	"bytes"
	"fmt"
	"text/template"
)

// analysisTemplateText asks the inference service to extract discrete work
// items from a communication. The response contract (description, category,
// priority, time_spent in minutes, project_hints, confidence) is what
// parseCandidates expects; anything else is handled by the fallback path.
const analysisTemplateText = `Analyze the following work communication and extract the discrete work items it describes.

{{if .Sender}}From: {{.Sender}} via {{.Source}} at {{.Timestamp}}
{{end}}Message:
"{{.Body}}"
{{if .Context}}
Recent messages from the same thread, oldest first:
{{.Context}}
{{end}}
Identify specific tasks, meetings, reviews, troubleshooting, and other work activities. For each work item found, provide:
- description: brief description of the work
- category: one of development, testing, meeting, review, planning, troubleshooting, documentation, other
- priority: high, medium, or low
- time_spent: time spent in minutes, integer (omit or use null if not stated and not reasonably inferable)
- project_hints: array of project names, ticket keys, or technology keywords mentioned
- confidence: your confidence in this item, 0.0 to 1.0

Respond with a JSON array only, no prose:
[
  {
    "description": "Fixed login auth bug",
    "category": "development",
    "priority": "high",
    "time_spent": 120,
    "project_hints": ["PROJ-123", "auth", "login"],
    "confidence": 0.9
  }
]

If the message describes no work, respond with [].`

var analysisTemplate = template.Must(template.New("analysis").Parse(analysisTemplateText))

// promptData carries the values rendered into the analysis prompt.
type promptData struct {
	Sender    string
	Source    string
	Timestamp string
	Body      string
	Context   string
}

// renderAnalysisPrompt renders the analysis prompt for a message.
func renderAnalysisPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := analysisTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render analysis prompt: %w", err)
	}
	return buf.String(), nil
}
