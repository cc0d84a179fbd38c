package models

import (
	"time"
)

type ShortURL struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	ClickCount  int64     `json:"clickCount"`
}

type ShortenInput struct {
	URL  string
	Code string // пустой: код генерируется
}

type Availability struct {
	Code      string `json:"code"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type Stats struct {
	ID           int64        `json:"id"`
	Code         string       `json:"code"`
	OriginalURL  string       `json:"originalUrl"`
	CreatedAt    time.Time    `json:"createdAt"`
	ClicksTotal  int64        `json:"clicksTotal"`
	RecentClicks []ClickEvent `json:"recentClicks"`
}
