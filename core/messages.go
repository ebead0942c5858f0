package core

import (
	"strconv"
	"strings"
)

const (
	DefaultLocale = "en"
	LocaleZhCN    = "zh-CN"
)

var messageCatalog = map[string]map[string]string{
	DefaultLocale: {
		"network":    "Network connection failed. Check your connection and try again.",
		"auth":       "Your session has expired. Please sign in again.",
		"permission": "You do not have permission to perform this action.",
		"validation": "Some fields are invalid. Please review them and try again.",
		"api":        "The request could not be completed.",
		"api.400":    "The request was invalid.",
		"api.404":    "The requested resource was not found.",
		"api.409":    "The resource was changed by someone else. Reload and try again.",
		"api.429":    "Too many requests. Please wait a moment and try again.",
		"api.5xx":    "The server is temporarily unavailable. Please try again later.",
		"unknown":    "An unexpected error occurred.",
	},
	LocaleZhCN: {
		"network":    "网络连接失败，请检查网络后重试。",
		"auth":       "登录已过期，请重新登录。",
		"permission": "您没有执行此操作的权限。",
		"validation": "部分字段填写有误，请检查后重试。",
		"api":        "请求未能完成。",
		"api.400":    "请求参数有误。",
		"api.404":    "请求的资源不存在。",
		"api.409":    "资源已被他人修改，请刷新后重试。",
		"api.429":    "请求过于频繁，请稍后再试。",
		"api.5xx":    "服务器暂时不可用，请稍后再试。",
		"unknown":    "发生未知错误。",
	},
}

// Message returns the user-facing text for a kind in the given locale.
// Unknown locales fall back to English.
func Message(kind ErrorKind, status int, locale string) string {
	catalog := messageCatalog[normalizeLocale(locale)]
	if kind == KindAPI && status != 0 {
		key := "api." + strconv.Itoa(status)
		if status >= 500 {
			key = "api.5xx"
		}
		if text, ok := catalog[key]; ok {
			return text
		}
	}
	if text, ok := catalog[string(kind)]; ok {
		return text
	}
	return catalog[string(KindUnknown)]
}

// UserMessage renders any error as a localized message.
func UserMessage(err error, locale string) string {
	if err == nil {
		return ""
	}
	typed := ClassifyError(err)
	status, _ := typed.HTTPStatus()
	return Message(typed.Kind(), status, locale)
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(locale, "_", "-")))
	switch {
	case locale == "zh", strings.HasPrefix(locale, "zh-cn"), strings.HasPrefix(locale, "zh-hans"):
		return LocaleZhCN
	default:
		return DefaultLocale
	}
}
