package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/wadispatch/pkg/constant"
	"github.com/wadispatch/pkg/domains/whatsapp"
	"github.com/wadispatch/pkg/dtos"
	"github.com/wadispatch/pkg/middleware"
)

func WhatsAppRoutes(r *gin.RouterGroup, s whatsapp.Service) {
	authGroup := r.Group("", middleware.CheckAuth())
	{
		authGroup.GET("/status", getStatus(s))
		authGroup.GET("/pairing-code", getPairingCode(s))
		authGroup.POST("/force-new-session", forceNewSession(s))
		authGroup.POST("/logout", logout(s))
		authGroup.GET("/queue", getQueue(s))
	}
}

// @Summary Session status
// @Tags whatsapp
// @Produce json
// @Security BearerAuth
// @Success 200 {object} whatsapp.Status
// @Router /whatsapp/status [get]
func getStatus(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		status, err := s.Status(c.Request.Context(), ownerID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, status)
	}
}

// @Summary Pairing code for linking the account
// @Description Brings the session up when needed. 202 means the code is not issued yet.
// @Tags whatsapp
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dtos.PairingCodeDTO
// @Success 202 {object} dtos.PairingCodeDTO
// @Router /whatsapp/pairing-code [get]
func getPairingCode(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		status, err := s.GetPairingCode(c.Request.Context(), ownerID)
		if err != nil {
			respondError(c, err)
			return
		}

		data := dtos.PairingCodeDTO{
			State:       string(status.State),
			PairingCode: status.PairingCode,
			Ready:       status.Ready,
		}
		switch {
		case status.Ready:
			c.JSON(200, gin.H{"message": constant.ALREADY_LINKED, "data": data})
		case status.PairingCode == "":
			c.JSON(202, gin.H{"message": constant.PAIRING_CODE_NOT_READY, "data": data})
		default:
			c.JSON(200, gin.H{"message": constant.PAIRING_CODE_PENDING, "data": data})
		}
	}
}

// @Summary Discard the stored credentials and start a new session
// @Tags whatsapp
// @Produce json
// @Security BearerAuth
// @Success 200 {object} whatsapp.Status
// @Router /whatsapp/force-new-session [post]
func forceNewSession(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		status, err := s.ForceNewSession(c.Request.Context(), ownerID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{
			"message": constant.SESSION_RESET,
			"data":    status,
		})
	}
}

// @Summary Log the session out and forget its credentials
// @Tags whatsapp
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string
// @Router /whatsapp/logout [post]
func logout(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		ownerID, ok := currentOwner(c)
		if !ok {
			return
		}
		if err := s.Logout(c.Request.Context(), ownerID); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(200, gin.H{
			"message": constant.WHATSAPP_LOGGED_OUT,
		})
	}
}

// @Summary Session bring-up queue
// @Tags whatsapp
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dtos.QueueStatusDTO
// @Router /whatsapp/queue [get]
func getQueue(s whatsapp.Service) func(c *gin.Context) {
	return func(c *gin.Context) {
		q := s.QueueStatus()
		c.JSON(200, dtos.QueueStatusDTO{
			Queued:      q.Queued,
			Active:      q.Active,
			Concurrency: q.Concurrency,
		})
	}
}
