package utils

import (
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	Validator *validator.Validate
}

func NewCustomValidator(v *validator.Validate) *CustomValidator {
	Validator := &CustomValidator{v}
	Validator.ValidatorRegistery()
	return Validator
}

// BindValidations registers the custom tags on gin's request validator.
func BindValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		NewCustomValidator(v)
	}
}

func (c *CustomValidator) ValidatorRegistery() {
	c.Validator.RegisterValidation("isemail", c.IsValidEmail)
}

func (c *CustomValidator) IsValidEmail(fl validator.FieldLevel) bool {
	email := strings.TrimSpace(fl.Field().String())
	_, err := mail.ParseAddress(email)
	return err == nil
}
