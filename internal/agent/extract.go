package agent

import (
	"regexp"
	"strings"
)

var sqlFence = regexp.MustCompile("(?is)```sql[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")

// ExtractSQL returns the trimmed body of the first ```sql fenced block in
// text. Text without such a block, or with an empty one, yields ok == false.
func ExtractSQL(text string) (string, bool) {
	match := sqlFence.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	statement := strings.TrimSpace(match[1])
	if statement == "" {
		return "", false
	}
	return statement, true
}
