package campaign

import (
	"errors"

	"github.com/wadispatch/pkg/constant"
)

var (
	ErrCampaignNotFound   = errors.New("campaign: not found")
	ErrInvalidTransition  = errors.New(constant.INVALID_TRANSITION)
	ErrNoEligibleCampaign = errors.New("campaign: no eligible campaign")
	ErrEmptyContacts      = errors.New(constant.EMPTY_CONTACTS)
	ErrInvalidDelayRange  = errors.New(constant.INVALID_DELAY_RANGE)
)
