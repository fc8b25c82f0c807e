package validator

import (
	"errors"
	"testing"

	"github.com/stemsi/exstem-attempt-engine/internal/model"
	"github.com/stretchr/testify/assert"
)

func init() {
	Setup()
}

func TestCustomRules(t *testing.T) {
	assert.Nil(t, Struct(&model.TelemetryRequest{Kind: "tab-switch"}))

	fields := Struct(&model.TelemetryRequest{Kind: "screenshot"})
	assert.Contains(t, fields["kind"], "must be one of tab-switch")

	fields = Struct(&model.TelemetryRequest{})
	assert.Contains(t, fields, "kind")

	assert.Nil(t, Struct(&model.ForceSubmitRequest{}))
	assert.Nil(t, Struct(&model.ForceSubmitRequest{Reason: "timeout"}))
	fields = Struct(&model.ForceSubmitRequest{Reason: "bored"})
	assert.Equal(t, "reason must be one of user, timeout, forced", fields["reason"])
}

func TestTranslateErrorsFallsBackToDetail(t *testing.T) {
	fields := TranslateErrors(errors.New("unexpected EOF"))
	assert.Equal(t, map[string]string{"detail": "unexpected EOF"}, fields)
}
