package sweep

import (
	"fmt"
	"sort"
	"strings"
)

const (
	cyan     = "\033[38;2;86;182;194m"  // One Dark Cyan: #56B6C2
	dimCyan  = "\033[38;2;47;91;102m"   // Dim Cyan: #2F5B66
	grey     = "\033[38;2;110;118;129m" // Brighter Grey: #6E7681
	dimGrey  = "\033[38;2;75;82;99m"    // Darker Grey: #4B5263
	success  = "\033[38;2;62;130;144m"  // Dim Cyan: #3E8290
	warning  = "\033[38;2;229;192;123m" // One Dark Yellow: #E5C07B
	errorRed = "\033[38;2;224;108;117m" // One Dark Red: #E06C75
	white    = "\033[38;2;171;178;191m" // One Dark Foreground: #ABB2BF
	reset    = "\033[0m"
	bold     = "\033[1m"
)

// Reporter renders sweep reports for verbose console output.
type Reporter struct{}

func NewReporter() *Reporter {
	return &Reporter{}
}

// Generate renders one pass as a short colored block.
func (r *Reporter) Generate(report Report) string {
	var b strings.Builder
	timestamp := report.StartedAt.Format("2006-01-02 15:04:05 MST")

	b.WriteString(fmt.Sprintf("%s%s▓ %s | Sweep: %s%s %s\n", bold, dimCyan, timestamp, white, strings.ToUpper(string(report.Mode)), reset))

	item := func(label string, count int, color string) string {
		if count > 0 {
			return fmt.Sprintf(" %s%s:%s%d", dimCyan, label, color, count)
		}
		return fmt.Sprintf(" %s%s:%s--", dimGrey, label, dimGrey)
	}

	b.WriteString(fmt.Sprintf("%s✦ entries:%s", cyan, reset))
	b.WriteString(item("visited", report.Visited, cyan))
	b.WriteString(item("refreshed", report.Refreshed, success))
	b.WriteString(item("skipped", report.Skipped, warning))
	b.WriteString(item("failed", report.Failed, errorRed))
	b.WriteString(fmt.Sprintf(" %s(%v)%s\n", grey, report.Duration, reset))

	if len(report.Errors) > 0 {
		keys := make([]string, 0, len(report.Errors))
		for k := range report.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("%s%s✖ %s%s: %v%s\n", bold, errorRed, grey, k, report.Errors[k], reset))
		}
	}

	return b.String()
}
