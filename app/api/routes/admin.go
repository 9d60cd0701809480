package routes

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/wadispatch/pkg/constant"
	"github.com/wadispatch/pkg/middleware"
)

// Reconciler returns campaigns left running by a dead process to pending.
type Reconciler interface {
	Reconcile(ctx context.Context) (int64, error)
}

func AdminRoutes(r *gin.RouterGroup, rec Reconciler) {
	adminGroup := r.Group("", middleware.Admin())
	{
		adminGroup.POST("/reconcile", reconcile(rec))
	}
}

// @Summary Return stale running campaigns to pending
// @Tags admin
// @Produce json
// @Param admin_key header string true "admin key"
// @Success 200 {object} map[string]interface{}
// @Router /admin/reconcile [post]
func reconcile(rec Reconciler) func(c *gin.Context) {
	return func(c *gin.Context) {
		n, err := rec.Reconcile(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{
			"message":    fmt.Sprintf(constant.RECONCILED, n),
			"reconciled": n,
		})
	}
}
