package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/wadispatch/pkg/constant"
	"github.com/wadispatch/pkg/domains/autoresponse"
	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/middleware"
)

func AutoResponseRoutes(r *gin.RouterGroup, s autoresponse.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.GET("", listRules(s))
		authGroup.POST("", createRule(s))
		authGroup.PUT("/:id", updateRule(s))
		authGroup.DELETE("/:id", deleteRule(s))
	}
}

// @Summary List auto-response rules
// @Tags auto-responses
// @Produce json
// @Security BearerAuth
// @Success 200 {array} entities.AutoResponseRule
// @Router /auto-responses [get]
func listRules(s autoresponse.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		rules, err := s.ListRules(c.Request.Context(), ownerID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"data": rules})
	}
}

// @Summary Create an auto-response rule
// @Tags auto-responses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dtos.AutoResponseRuleDTO true "rule"
// @Success 201 {object} entities.AutoResponseRule
// @Router /auto-responses [post]
func createRule(s autoresponse.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		var req dtos.AutoResponseRuleDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		rule, err := s.CreateRule(c.Request.Context(), ownerID, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(201, gin.H{
			"message": fmt.Sprintf(constant.CREATED, constant.AUTO_RESPONSE_RULE),
			"data":    rule,
		})
	}
}

// @Summary Replace an auto-response rule
// @Tags auto-responses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "rule id"
// @Param body body dtos.AutoResponseRuleDTO true "rule"
// @Success 200 {object} entities.AutoResponseRule
// @Router /auto-responses/{id} [put]
func updateRule(s autoresponse.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		id, ok := paramID(c)
		if !ok {
			return
		}
		var req dtos.AutoResponseRuleDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		rule, err := s.UpdateRule(c.Request.Context(), ownerID, id, req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{
			"message": constant.UPDATED,
			"data":    rule,
		})
	}
}

// @Summary Delete an auto-response rule
// @Tags auto-responses
// @Produce json
// @Security BearerAuth
// @Param id path int true "rule id"
// @Success 200 {object} map[string]string
// @Router /auto-responses/{id} [delete]
func deleteRule(s autoresponse.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := s.DeleteRule(c.Request.Context(), ownerID, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"message": constant.DELETED})
	}
}
