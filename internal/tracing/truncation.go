package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength 普通span属性的最大长度
	DefaultMaxLength = 200

	// MaxResumePreviewLength 简历文本预览的最大长度
	MaxResumePreviewLength = 150
)

// 属性名命中这些关键字时值会被掩码，避免把应聘者隐私写进追踪系统
var piiKeywords = []string{
	"email", "phone", "name", "address", "age",
	"姓名", "地址", "年龄", "身份证", "id_card",
	"password", "secret", "token",
}

// SafeAttributeValue 处理写入span的属性值:
// 属性名含隐私关键字时做掩码，否则只做长度截断。
func SafeAttributeValue(name string, value string, maxLength int) string {
	lowerName := strings.ToLower(name)
	for _, keyword := range piiKeywords {
		if strings.Contains(lowerName, keyword) {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 掩码个人信息，只保留首尾少量字符。
// 两字符的姓名保留首字，较长的邮箱和手机号保留前后各两位。
func MaskPII(value string) string {
	runes := []rune(value)
	switch n := len(runes); {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[:1]) + "*"
	case n <= 4:
		return string(runes[:1]) + strings.Repeat("*", n-2) + string(runes[n-1:])
	default:
		return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
	}
}

// TruncateString 截断超长字符串，保留首尾并以省略号连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// SafeResumeContent 生成可安全写入span的简历文本预览
func SafeResumeContent(content string) string {
	return TruncateString(content, MaxResumePreviewLength)
}
