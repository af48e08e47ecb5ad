package handlers

import "github.com/gin-gonic/gin"

// Machine-checkable error kinds returned alongside human-readable messages.
const (
	kindNotFound     = "not_found"
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindValidation   = "validation"
	kindConflict     = "conflict"
	kindStorage      = "storage"
)

func respondError(c *gin.Context, status int, kind, message string) {
	c.JSON(status, gin.H{"kind": kind, "error": message})
}
