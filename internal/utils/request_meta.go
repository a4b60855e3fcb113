package utils

import (
	"github.com/gin-gonic/gin"
	"github.com/parkpass/ticketing-backend/internal/models"
)

// RequestMeta collects the caller details recorded on payment audit entries
func RequestMeta(c *gin.Context) models.RequestMeta {
	userAgent := GetUserAgent(c)
	device := ParseUserAgent(userAgent)
	return models.RequestMeta{
		IP:        GetRealIP(c),
		UserAgent: userAgent,
		Device: models.JSONB{
			"device_type": device.DeviceType,
			"os":          device.OS,
			"browser":     device.Browser,
			"browser_ver": device.BrowserVer,
			"platform":    device.Platform,
			"is_bot":      device.IsBot,
		},
	}
}
