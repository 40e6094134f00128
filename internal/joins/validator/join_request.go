package validator

import (
	"letsplay/pkg/logger"
	"letsplay/pkg/model"
	"letsplay/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type JoinRequestValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewJoinRequestValidator(log *logger.Logger) *JoinRequestValidator {
	return &JoinRequestValidator{
		validate: validation.New(log),
		logger:   log,
	}
}

func (v *JoinRequestValidator) Validate(req *model.JoinRequest) error {
	return validation.Struct(v.validate, req)
}
