package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanModelJSON(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "裸JSON",
			input:    `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "json代码块",
			input:    "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "无语言标记的代码块",
			input:    "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "JSON前后有说明文字",
			input:    "以下是提取結果：\n{\"a\": 1}\n希望对你有帮助。",
			expected: `{"a": 1}`,
		},
		{
			name:     "带BOM和空白",
			input:    "\uFEFF  {\"a\": 1}  ",
			expected: `{"a": 1}`,
		},
		{
			name:     "没有JSON",
			input:    "抱歉，我无法处理这份简历。",
			expected: "",
		},
		{
			name:     "空输入",
			input:    "",
			expected: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cleanModelJSON(tc.input))
		})
	}
}

func TestSanitizeJSONRepairsInnerQuotes(t *testing.T) {
	// 字符串值内部未转义的引号会被补上转义
	broken := `{"analysis": "候選人擅長"微服務"架構"}`
	assert.JSONEq(t, `{"analysis": "候選人擅長\"微服務\"架構"}`, sanitizeJSON(broken))

	// 已经合法的JSON保持不变
	valid := `{"a": "b", "list": ["x", "y"]}`
	assert.Equal(t, valid, sanitizeJSON(valid))
}
