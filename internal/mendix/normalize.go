package mendix

import "strings"

// 平台对环境名大小写敏感：标准环境必须精确拼写。
var canonicalEnvironments = []string{"Production", "Acceptance", "Test"}

// NormalizeEnvironmentName 规范化环境名。
// 标准环境（Production/Acceptance/Test）不区分大小写匹配后使用精确拼写；
// 自定义环境名仅首字母大写、其余小写。
func NormalizeEnvironmentName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return trimmed
	}
	for _, canonical := range canonicalEnvironments {
		if strings.EqualFold(trimmed, canonical) {
			return canonical
		}
	}
	return strings.ToUpper(trimmed[:1]) + strings.ToLower(trimmed[1:])
}
