package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/serviciomed/serviciomed/internal/tokens"
	"github.com/serviciomed/serviciomed/pkg/logger"
)

const (
	// FlashCookie carries pending messages across one redirect.
	FlashCookie = "serviciomed_flash"
	flashTTL    = 5 * time.Minute
	pendingKey  = "flash.pending"
)

// Flasher keeps one-shot user messages in a signed cookie.
type Flasher struct {
	secret []byte
	secure bool
}

func NewFlasher(secret []byte, secure bool) *Flasher {
	return &Flasher{secret: secret, secure: secure}
}

// Add queues a message for the next rendered page.
func (f *Flasher) Add(c *gin.Context, category, message string) {
	list := append(f.pending(c), tokens.Flash{Category: category, Message: message})
	c.Set(pendingKey, list)
	tok, err := tokens.SignFlashes(f.secret, list, flashTTL)
	if err != nil {
		logger.Errorf("sign flash: %v", err)
		return
	}
	f.setCookie(c, tok, int(flashTTL.Seconds()))
}

// Pop returns the queued messages and clears them.
func (f *Flasher) Pop(c *gin.Context) []tokens.Flash {
	list := f.pending(c)
	c.Set(pendingKey, []tokens.Flash{})
	if _, err := c.Cookie(FlashCookie); err == nil || len(list) > 0 {
		f.setCookie(c, "", -1)
	}
	return list
}

func (f *Flasher) pending(c *gin.Context) []tokens.Flash {
	if v, ok := c.Get(pendingKey); ok {
		return v.([]tokens.Flash)
	}
	raw, err := c.Cookie(FlashCookie)
	if err != nil || raw == "" {
		return nil
	}
	list, err := tokens.ParseFlashes(f.secret, raw)
	if err != nil {
		logger.Debugf("dropping flash cookie: %v", err)
		return nil
	}
	return list
}

func (f *Flasher) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(FlashCookie, value, maxAge, "/", "", f.secure, true)
}
