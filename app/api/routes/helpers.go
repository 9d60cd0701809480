package routes

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/constant"
	"github.com/wadispatch/pkg/domains/autoresponse"
	"github.com/wadispatch/pkg/domains/campaign"
	"github.com/wadispatch/pkg/domains/whatsapp"
	"github.com/wadispatch/pkg/state"
	"github.com/wadispatch/pkg/utils"
)

func currentOwner(c *gin.Context) (uint, bool) {
	ownerID := state.CurrentOwner(c)
	if ownerID == 0 {
		c.JSON(401, gin.H{"error": constant.UNAUTHORIZED_ACCESS})
		return 0, false
	}
	return ownerID, true
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(400, gin.H{"error": constant.INVALID_ID})
		return 0, false
	}
	return uint(id), true
}

func pageNumber(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		c.JSON(400, gin.H{"error": constant.INVALID_PAGE_NUMBER})
		return 0, false
	}
	return page, true
}

// respondError maps domain errors onto status codes. Unknown errors are
// logged and answered with a generic message.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaign.ErrCampaignNotFound):
		c.JSON(404, gin.H{"error": fmt.Sprintf(constant.CANT_FIND, constant.CAMPAIGN)})
	case errors.Is(err, autoresponse.ErrRuleNotFound):
		c.JSON(404, gin.H{"error": fmt.Sprintf(constant.CANT_FIND, constant.AUTO_RESPONSE_RULE)})
	case errors.Is(err, whatsapp.ErrSessionNotFound):
		c.JSON(404, gin.H{"error": constant.SESSION_NOT_FOUND})
	case errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, whatsapp.ErrRelinkRequired),
		errors.Is(err, autoresponse.ErrDuplicateKeyword),
		errors.Is(err, autoresponse.ErrDuplicateFallback):
		c.JSON(409, gin.H{"error": err.Error()})
	case errors.Is(err, campaign.ErrEmptyContacts),
		errors.Is(err, campaign.ErrInvalidDelayRange),
		errors.Is(err, autoresponse.ErrInvalidRule),
		errors.Is(err, utils.ErrPageOutOfRange):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, whatsapp.ErrNotReady):
		c.JSON(503, gin.H{"error": constant.WHATSAPP_NOT_CONNECTED})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(504, gin.H{"error": err.Error()})
	default:
		logrus.WithField("component", "http").WithError(err).
			WithFields(logrus.Fields{"method": c.Request.Method, "path": c.FullPath()}).
			Error("request failed")
		c.JSON(500, gin.H{"error": constant.SOMETHING_WENT_WRONG})
	}
}
