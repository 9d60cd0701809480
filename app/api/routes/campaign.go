package routes

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/wadispatch/pkg/constant"
	"github.com/wadispatch/pkg/domains/campaign"
	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/middleware"
)

func CampaignRoutes(r *gin.RouterGroup, s campaign.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.POST("", createCampaign(s))
		authGroup.GET("", listCampaigns(s))
		authGroup.GET("/:id", getCampaign(s))
		authGroup.GET("/:id/messages", listCampaignMessages(s))
		authGroup.POST("/:id/start", campaignAction(s.Start, constant.CAMPAIGN_STARTED))
		authGroup.POST("/:id/pause", campaignAction(s.Pause, constant.CAMPAIGN_PAUSED))
		authGroup.POST("/:id/resume", campaignAction(s.Resume, constant.CAMPAIGN_RESUMED))
		authGroup.POST("/:id/cancel", campaignAction(s.Cancel, constant.CAMPAIGN_CANCELLED))
	}
}

// @Summary Create a campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dtos.CreateCampaignDTO true "campaign"
// @Success 201 {object} dtos.CampaignDTO
// @Router /campaigns [post]
func createCampaign(s campaign.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		var req dtos.CreateCampaignDTO
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": constant.INVALID_REQUEST})
			return
		}

		created, err := s.Create(c.Request.Context(), ownerID, req)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message": fmt.Sprintf(constant.CREATED, constant.CAMPAIGN),
			"data":    dtos.NewCampaignDTO(created),
		})
	}
}

// @Summary List campaigns
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param page query int false "page number"
// @Success 200 {object} dtos.PageDTO
// @Router /campaigns [get]
func listCampaigns(s campaign.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		page, ok := pageNumber(c)
		if !ok {
			return
		}

		campaigns, totalPages, err := s.List(c.Request.Context(), ownerID, page)
		if err != nil {
			respondError(c, err)
			return
		}

		items := make([]dtos.CampaignDTO, 0, len(campaigns))
		for _, item := range campaigns {
			items = append(items, dtos.NewCampaignDTO(item))
		}
		c.JSON(200, dtos.PageDTO{Page: page, TotalPages: totalPages, Items: items})
	}
}

// @Summary Campaign detail with stats and cursor
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "campaign id"
// @Success 200 {object} dtos.CampaignDTO
// @Router /campaigns/{id} [get]
func getCampaign(s campaign.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		id, ok := paramID(c)
		if !ok {
			return
		}

		found, err := s.Get(c.Request.Context(), ownerID, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, dtos.NewCampaignDTO(found))
	}
}

// @Summary Message records of a campaign
// @Tags campaigns
// @Produce json
// @Security BearerAuth
// @Param id path int true "campaign id"
// @Param page query int false "page number"
// @Success 200 {object} dtos.PageDTO
// @Router /campaigns/{id}/messages [get]
func listCampaignMessages(s campaign.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		id, ok := paramID(c)
		if !ok {
			return
		}
		page, ok := pageNumber(c)
		if !ok {
			return
		}

		messages, totalPages, err := s.Messages(c.Request.Context(), ownerID, id, page)
		if err != nil {
			respondError(c, err)
			return
		}

		items := make([]dtos.MessageDTO, 0, len(messages))
		for _, m := range messages {
			items = append(items, dtos.NewMessageDTO(m))
		}
		c.JSON(200, dtos.PageDTO{Page: page, TotalPages: totalPages, Items: items})
	}
}

// campaignAction serves the start, pause, resume and cancel transitions.
func campaignAction(action func(ctx context.Context, ownerID, id uint) error, message string) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		id, ok := paramID(c)
		if !ok {
			return
		}
		if err := action(c.Request.Context(), ownerID, id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{"message": message})
	}
}
