package service

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// fallbackRegion 既没有显式地区也无法推断时按北美号码处理
const fallbackRegion = "US"

// NormalizeIdentifier 邮箱转小写；电话按地区解析为 E.164，解析失败原样返回
func NormalizeIdentifier(identifier, region string) string {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return identifier
	}
	if strings.Contains(trimmed, "@") {
		return strings.ToLower(trimmed)
	}
	if region == "" {
		region = fallbackRegion
	}
	num, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return identifier
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
