package insights

import (
	"fmt"
	"strconv"
	"strings"

	"heatmap/internal/events"
)

// InsufficientDataMessage is returned instead of a generated report when a
// site has no click data yet.
const InsufficientDataMessage = "Not enough data to analyze yet."

const promptHeader = `You are a world-class UX/UI design consultant.
A client has provided you with click data from their website.
Analyze the following click summary and provide actionable insights.

Click Data:
`

const promptInstructions = `
Based on this data, please provide:
1.  **Top Engaged Element:** Identify the element that receives the most user interaction.
2.  **Potential User Frustration:** Look for signs of "rage clicks" (high clicks on non-interactive elements like 'div > span') or confusing navigation patterns.
3.  **Actionable Recommendation:** Suggest one specific, high-impact change to improve user engagement or conversion. Be concise and clear.
`

// BuildPrompt renders the aggregation into the text sent to the generation
// service. Selectors are quoted with Go escaping so newlines, quotes and other
// control characters stored in a path cannot break the line structure.
func BuildPrompt(rows []events.PathCount) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	for i, row := range rows {
		fmt.Fprintf(&b, "%d. Element Selector: %s - Clicks: %d\n", i+1, QuoteSelector(row.Path), row.Count)
	}
	b.WriteString(promptInstructions)
	return b.String()
}

// QuoteSelector returns the selector as it appears in the prompt.
func QuoteSelector(path string) string {
	return strconv.Quote(path)
}
