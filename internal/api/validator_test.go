package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_SlackWebhook(t *testing.T) {
	type request struct {
		URL string `validate:"required,slackwebhook"`
	}

	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{name: "incoming webhook", url: "https://hooks.slack.com/services/T000/B000/XXXX", valid: true},
		{name: "internal host", url: "http://10.0.0.1/x"},
		{name: "plain http", url: "http://hooks.slack.com/services/T000/B000/XXXX"},
		{name: "other host", url: "https://hooks.slack.com.evil.io/services/T/B/X"},
		{name: "other path", url: "https://hooks.slack.com/workflows/T/B/X"},
		{name: "prefix only", url: "https://hooks.slack.com/services/"},
		{name: "not a url", url: "not a url"},
	}

	v := NewValidator()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(&request{URL: tt.url})
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
