// api/router.go
package api

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"appalti/internal/registry"
)

// NewRouter собирает read-only операторский интерфейс.
// Только чтение: ни одна ручка не меняет staging, core или аудит.
func NewRouter(db *sql.DB, reg *registry.Registry, jsonRoot string) *gin.Engine {
	r := gin.Default()

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", StatusHandler(db))
		apiGroup.GET("/pending", PendingHandler(db, reg))
		apiGroup.GET("/plan", PlanHandler(reg, jsonRoot))
	}
	return r
}

func RunServer(addr string, db *sql.DB, reg *registry.Registry, jsonRoot string) error {
	return NewRouter(db, reg, jsonRoot).Run(addr)
}
