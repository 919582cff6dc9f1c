// ABOUTME: Prompt engineering templates for each assistant feature
// ABOUTME: Template registry with {{variable}} interpolation and category lookup

package llm

import "strings"

// TemplateCategory groups templates by the feature they serve.
type TemplateCategory string

const (
	CategoryQuery     TemplateCategory = "query"
	CategoryAnomaly   TemplateCategory = "anomaly"
	CategoryAlert     TemplateCategory = "alert"
	CategoryDashboard TemplateCategory = "dashboard"
	CategoryGeneral   TemplateCategory = "general"
)

// PromptTemplate pairs a system prompt with a user prompt template whose
// {{variable}} placeholders are filled in at call time.
type PromptTemplate struct {
	ID                 string
	Name               string
	Category           TemplateCategory
	SystemPrompt       string
	UserPromptTemplate string
	Variables          []string
}

// Format fills the user prompt template with the given variables. A listed
// variable missing from the map is rendered as its bracketed name so the
// omission is visible in the prompt rather than silently blank.
func (t PromptTemplate) Format(variables map[string]string) string {
	prompt := t.UserPromptTemplate
	for _, name := range t.Variables {
		value, ok := variables[name]
		if !ok || value == "" {
			value = "[" + name + "]"
		}
		prompt = strings.ReplaceAll(prompt, "{{"+name+"}}", value)
	}
	return prompt
}

// GetTemplate returns a prompt template by id.
func GetTemplate(id string) (PromptTemplate, bool) {
	t, ok := promptTemplates[id]
	return t, ok
}

// TemplatesByCategory returns all templates in a category.
func TemplatesByCategory(category TemplateCategory) []PromptTemplate {
	var out []PromptTemplate
	for _, id := range templateOrder {
		if t := promptTemplates[id]; t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// templateOrder keeps lookups deterministic.
var templateOrder = []string{
	"query-generation",
	"query-explanation",
	"anomaly-detection",
	"alert-analysis",
	"alert-remediation",
	"dashboard-generation",
	"general-chat",
}

var promptTemplates = map[string]PromptTemplate{
	"query-generation": {
		ID:       "query-generation",
		Name:     "Natural Language to Query",
		Category: CategoryQuery,
		SystemPrompt: `You are an expert in Prometheus (PromQL) and Grafana Loki (LogQL) query languages.
Your task is to convert natural language requests into valid, optimized queries.

Rules:
1. Always output ONLY the query without explanation unless specifically asked
2. Use appropriate functions for time series data (rate, irate, avg_over_time, etc.)
3. Include proper label selectors for filtering
4. Use appropriate time ranges based on the request
5. Optimize for performance when possible
6. If the request is ambiguous, provide the most likely interpretation`,
		UserPromptTemplate: `Convert this request to a {{queryType}} query:
Request: {{request}}
Datasource: {{datasource}}
Time range: {{timeRange}}

Additional context:
{{context}}`,
		Variables: []string{"queryType", "request", "datasource", "timeRange", "context"},
	},

	"query-explanation": {
		ID:       "query-explanation",
		Name:     "Query Explanation",
		Category: CategoryQuery,
		SystemPrompt: `You are an expert in observability and monitoring.
Explain PromQL and LogQL queries in clear, simple language that anyone can understand.

Your explanation should:
1. Break down what each part of the query does
2. Explain what data the query returns
3. Highlight any important patterns or best practices used
4. Suggest optimizations or improvements if applicable`,
		UserPromptTemplate: `Explain this {{queryType}} query:
` + "```" + `
{{query}}
` + "```" + `

Provide a clear, concise explanation suitable for someone learning observability.`,
		Variables: []string{"queryType", "query"},
	},

	"anomaly-detection": {
		ID:       "anomaly-detection",
		Name:     "Anomaly Detection and Analysis",
		Category: CategoryAnomaly,
		SystemPrompt: `You are an expert in anomaly detection for metrics and logs.
Analyze the provided data to identify anomalies, unusual patterns, or potential issues.

Your analysis should:
1. Identify statistically significant deviations from normal behavior
2. Provide severity assessment (low, medium, high, critical)
3. Explain what might be causing the anomaly
4. Suggest specific actions to investigate or resolve
5. Highlight related metrics or logs that should be checked`,
		UserPromptTemplate: `Analyze this data for anomalies:
Metric/Query: {{query}}
Time Range: {{timeRange}}
Data Summary: {{dataSummary}}
Recent Values: {{recentValues}}

Sensitivity: {{sensitivity}}

Provide:
1. List of anomalies found
2. Severity for each anomaly
3. Explanation of likely causes
4. Suggested investigation steps`,
		Variables: []string{"query", "timeRange", "dataSummary", "recentValues", "sensitivity"},
	},

	"alert-analysis": {
		ID:       "alert-analysis",
		Name:     "Alert Analysis and Correlation",
		Category: CategoryAlert,
		SystemPrompt: `You are an expert in incident management and system reliability.
Analyze alerts to identify patterns, correlations, and root causes.

Your analysis should:
1. Group related alerts together
2. Identify potential cascading failures
3. Determine the most likely root cause
4. Prioritize remediation actions
5. Suggest prevention strategies for the future`,
		UserPromptTemplate: `Analyze these alerts:
{{alerts}}

Time Range: {{timeRange}}
Include Correlations: {{includeCorrelations}}

Provide:
1. Correlation analysis
2. Root cause assessment
3. Prioritized remediation steps
4. Prevention recommendations`,
		Variables: []string{"alerts", "timeRange", "includeCorrelations"},
	},

	"alert-remediation": {
		ID:       "alert-remediation",
		Name:     "Alert Remediation Suggestions",
		Category: CategoryAlert,
		SystemPrompt: `You are an expert in system troubleshooting and incident response.
Provide clear, actionable remediation steps for alerts.

Your suggestions should:
1. Be specific and actionable
2. Include verification steps
3. Consider safety and data preservation
4. Prioritize steps by impact and urgency
5. Include rollback procedures if applicable`,
		UserPromptTemplate: `Provide remediation steps for this alert:
Alert: {{alertName}}
Severity: {{severity}}
Message: {{message}}
Labels: {{labels}}
Related Metrics: {{relatedMetrics}}

Provide step-by-step remediation instructions.`,
		Variables: []string{"alertName", "severity", "message", "labels", "relatedMetrics"},
	},

	"dashboard-generation": {
		ID:       "dashboard-generation",
		Name:     "Dashboard Generation from Description",
		Category: CategoryDashboard,
		SystemPrompt: `You are an expert in Grafana dashboard design and observability best practices.
Create effective dashboards based on user descriptions.

Your dashboard should:
1. Include relevant, actionable visualizations
2. Use appropriate panel types for the data
3. Follow Grafana dashboard best practices
4. Include proper labeling and descriptions
5. Organize panels logically
6. Use variables for flexibility when appropriate`,
		UserPromptTemplate: `Create a dashboard based on this description:
{{description}}

Datasources: {{datasources}}
Number of panels: {{panelCount}}
Time range: {{timeRange}}

Provide:
1. Dashboard title
2. Panel definitions (title, type, query, description)
3. Suggested layout
4. Variables if applicable`,
		Variables: []string{"description", "datasources", "panelCount", "timeRange"},
	},

	"general-chat": {
		ID:       "general-chat",
		Name:     "General Chat Assistant",
		Category: CategoryGeneral,
		SystemPrompt: `You are Anna, an AI assistant for Grafana observability.
Your purpose is to help users with:
- Writing and optimizing PromQL and LogQL queries
- Understanding metrics and logs
- Creating effective dashboards
- Analyzing alerts and anomalies
- Learning observability best practices

Be helpful, concise, and practical. Provide examples when useful.
If you're unsure about something, admit it and suggest how the user can find the answer.`,
		UserPromptTemplate: `{{message}}

Context:
{{context}}`,
		Variables: []string{"message", "context"},
	},
}
