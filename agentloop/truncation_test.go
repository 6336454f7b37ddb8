package agentloop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", TruncateOutput("short", 10, TruncateHeadTail))
	assert.Equal(t, "unbounded", TruncateOutput("unbounded", 0, TruncateTail))

	out := TruncateOutput(strings.Repeat("a", 50)+strings.Repeat("b", 50), 20, TruncateHeadTail)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 10)))
	assert.Contains(t, out, "80 characters were removed from the middle")

	out = TruncateOutput(strings.Repeat("a", 50)+strings.Repeat("b", 50), 20, TruncateTail)
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 20)))
	assert.Contains(t, out, "First 80 characters were removed")
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = string(rune('a' + i))
	}
	out := TruncateLines(strings.Join(lines, "\n"), 4)
	assert.Equal(t, "a\nb\n[... 6 lines omitted ...]\ni\nj", out)

	assert.Equal(t, "a\nb", TruncateLines("a\nb", 4))
}

func TestTruncateToolOutput(t *testing.T) {
	long := strings.Repeat("x", 9000)

	out := TruncateToolOutput(long, "file_manager", nil, nil)
	assert.Less(t, len(out), 9000)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("x", 4000)))

	out = TruncateToolOutput(long, "custom", map[string]int{"custom": 100}, nil)
	assert.Contains(t, out, "8900 characters were removed")

	out = TruncateToolOutput(long, "unknown", nil, nil)
	assert.Contains(t, out, "5000 characters were removed")

	many := strings.Repeat("line\n", 500)
	out = TruncateToolOutput(many, "terminal", nil, nil)
	assert.Contains(t, out, "lines omitted")

	out = TruncateToolOutput(many, "terminal", nil, map[string]int{"terminal": 0})
	assert.NotContains(t, out, "lines omitted")
}
