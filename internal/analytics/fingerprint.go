package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// Fingerprint identifies a viewer by hashing its user agent and IP.
func Fingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(userAgent) + "|" + strings.TrimSpace(ip)))
	return hex.EncodeToString(sum[:])
}

// Client is the parsed view of a user agent string.
type Client struct {
	Bot     bool
	Browser string
	OS      string
	Mobile  bool
}

// ParseClient inspects a user agent. An empty agent counts as a bot.
func ParseClient(userAgent string) Client {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Client{Bot: true}
	}
	ua := useragent.New(userAgent)
	name, _ := ua.Browser()
	return Client{
		Bot:     ua.Bot(),
		Browser: name,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
	}
}
