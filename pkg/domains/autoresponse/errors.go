package autoresponse

import (
	"errors"

	"github.com/wadispatch/pkg/constant"
)

var (
	ErrRuleNotFound      = errors.New("autoresponse: rule not found")
	ErrDuplicateKeyword  = errors.New(constant.DUPLICATE_KEYWORD)
	ErrDuplicateFallback = errors.New(constant.DUPLICATE_FALLBACK)
	ErrInvalidRule       = errors.New(constant.INVALID_RULE)
)
