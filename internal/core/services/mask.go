package services

import (
	"strconv"
	"strings"
)

// reservedMaskChars — символы языка масок Wialon: подстановки, альтернатива
// и операторы сравнения. Шаблон с ними передаётся без изменений.
const reservedMaskChars = "*?|<>=!"

// NameMask превращает пользовательский шаблон в маску для sys_name.
func NameMask(pattern string) string {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return "*"
	}
	// Запятая разделяет маски нескольких свойств, внутри шаблона её заменяет "?".
	p = strings.ReplaceAll(p, ",", "?")
	if strings.ContainsAny(p, reservedMaskChars) {
		return p
	}
	return "*" + p + "*"
}

// IDMask собирает маску sys_id вида "1|2|3".
func IDMask(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, "|")
}
