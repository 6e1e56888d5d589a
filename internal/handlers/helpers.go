package handlers

import (
	"github.com/gin-gonic/gin"
)

type FlashMessage struct {
	Category string
	Message  string
}

// popFlash reads and clears the flash cookie pair set by the rate limiter
// and redirect paths.
func popFlash(c *gin.Context) []FlashMessage {
	msg, err := c.Cookie("flash_message")
	if err != nil || msg == "" {
		return nil
	}
	category, err := c.Cookie("flash_category")
	if err != nil || category == "" {
		category = "info"
	}

	c.SetCookie("flash_message", "", -1, "/", "", false, false)
	c.SetCookie("flash_category", "", -1, "/", "", false, false)

	return []FlashMessage{{Category: category, Message: msg}}
}
