package api

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

const (
	tagSlackWebhook    = "slackwebhook"
	slackWebhookPrefix = "https://hooks.slack.com/services/"
)

type requestValidator struct {
	validate *validator.Validate
}

func NewValidator() echo.Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation(tagSlackWebhook, isSlackWebhook); err != nil {
		panic(err)
	}
	return &requestValidator{validate: v}
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

// isSlackWebhook accepts Slack incoming webhook URLs only; alerts are POSTed to them.
func isSlackWebhook(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if !strings.HasPrefix(raw, slackWebhookPrefix) || len(raw) == len(slackWebhookPrefix) {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host == "hooks.slack.com" && u.User == nil
}
