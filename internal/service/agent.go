package service

import (
	"strings"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/mssola/useragent"
)

// describeAgent заполняет браузер, ОС и тип устройства из User-Agent клика
func describeAgent(click *models.ClickEvent) {
	if click.UserAgent == nil || *click.UserAgent == "" {
		return
	}

	ua := useragent.New(*click.UserAgent)
	name, version := ua.Browser()
	click.Browser = strings.TrimSpace(name + " " + version)
	click.OS = ua.OS()

	switch {
	case ua.Bot():
		click.Device = "bot"
	case ua.Mobile():
		click.Device = "mobile"
	default:
		click.Device = "desktop"
	}
}
