package society

import "strings"

const (
	// Sentinel marks a finished task.
	Sentinel = "TASK_DONE"

	// SentinelZH is the Chinese form of Sentinel.
	SentinelZH = "任务已完成"
)

// ContainsSentinel reports whether text declares the task done in either language.
func ContainsSentinel(text string) bool {
	return strings.Contains(text, Sentinel) || strings.Contains(text, SentinelZH)
}

// ExtractTagged returns the trimmed text between <tag> and </tag>, and
// whether such a block exists. The first block wins.
func ExtractTagged(content, tag string) (string, bool) {
	open, closing := "<"+tag+">", "</"+tag+">"
	start := strings.Index(content, open)
	if start < 0 {
		return "", false
	}
	body := content[start+len(open):]
	end := strings.Index(body, closing)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}
