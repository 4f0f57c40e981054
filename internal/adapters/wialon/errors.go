package wialon

import "fmt"

// Коды ошибок Wialon Remote API, которые обрабатываются особо.
const (
	CodeInvalidSession = 1
	CodeAccessDenied   = 7
)

var errorTexts = map[int]string{
	1:    "invalid session",
	2:    "invalid service name",
	3:    "invalid result",
	4:    "invalid input",
	5:    "error performing request",
	6:    "unknown error",
	7:    "access denied",
	8:    "invalid user name or password",
	9:    "authorization server is unavailable",
	10:   "reached limit of concurrent requests",
	1001: "no messages for selected interval",
	1002: "item already exists or billing restrictions",
	1003: "only one request is allowed at the moment",
	1004: "limit of messages has been exceeded",
	1005: "execution time has exceeded the limit",
	1006: "two-factor authorization attempts limit exceeded",
	1011: "ip has changed or session has expired",
}

// APIError — ошибка, возвращённая Wialon в теле ответа.
type APIError struct {
	Svc    string
	Code   int
	Reason string
}

func (e *APIError) Error() string {
	text, ok := errorTexts[e.Code]
	if !ok {
		text = "unexpected error"
	}
	if e.Reason != "" {
		return fmt.Sprintf("wialon %s: error %d (%s): %s", e.Svc, e.Code, text, e.Reason)
	}
	return fmt.Sprintf("wialon %s: error %d (%s)", e.Svc, e.Code, text)
}
