package models

import (
	"time"
)

type ClickEvent struct {
	ID         int64     `json:"id"`
	ShortURLID int64     `json:"shortUrlId"`
	Timestamp  time.Time `json:"timestamp"`
	IP         *string   `json:"ip"`
	Referrer   *string   `json:"referrer"`
	UserAgent  *string   `json:"userAgent"`

	// Вычисляются из UserAgent при чтении статистики, в БД не хранятся
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Device  string `json:"device,omitempty"`
}

// Visit метаданные посетителя, записываемые при редиректе
type Visit struct {
	IP        *string
	Referrer  *string
	UserAgent *string
}

// NewVisit строит Visit, заменяя пустые строки на nil
func NewVisit(ip, referrer, userAgent string) Visit {
	return Visit{
		IP:        optional(ip),
		Referrer:  optional(referrer),
		UserAgent: optional(userAgent),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
