package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ramihomecare1-commits/Scalper/internal/config"
)

func TestRedactMasksSecrets(t *testing.T) {
	cfg := config.Config{}
	cfg.Exchange.APIKey = "key"
	cfg.Exchange.Passphrase = "pass"
	cfg.Telegram.BotToken = "tok"
	cfg.Telegram.ChatID = "42"

	out := redact(cfg)
	assert.Equal(t, "****", out.Exchange.APIKey)
	assert.Equal(t, "****", out.Exchange.Passphrase)
	assert.Empty(t, out.Exchange.APISecret)
	assert.Equal(t, "****", out.Telegram.BotToken)
	assert.Equal(t, "42", out.Telegram.ChatID)
	assert.Equal(t, "key", cfg.Exchange.APIKey, "input left untouched")
}
