// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8082", cfg.Port)
	assert.Equal(t, 60*24*time.Hour, cfg.RequestExpireAfter)
	assert.Equal(t, 3, cfg.MaxExtensions)
	assert.Contains(t, cfg.DeliveryMethods, "PICKUP")
	assert.Contains(t, cfg.DeliveryMethods, "DELIVERY")
	assert.Contains(t, cfg.DeliveryMethods, "SELF-CHECKOUT")
	assert.Empty(t, cfg.SelfCheckoutStationKeyHash)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("REQUEST_EXPIRE_DAYS", "30")
	t.Setenv("MAX_EXTENSIONS", "1")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 30*24*time.Hour, cfg.RequestExpireAfter)
	assert.Equal(t, 1, cfg.MaxExtensions)
}

func TestLoadIgnoresMalformedInts(t *testing.T) {
	t.Setenv("MAX_EXTENSIONS", "lots")

	cfg := Load()
	assert.Equal(t, 3, cfg.MaxExtensions)
}

func TestStateCategories(t *testing.T) {
	cfg := &Config{
		RequestStates:   []string{"PENDING"},
		ActiveStates:    []string{"ITEM_ON_LOAN"},
		CompletedStates: []string{"ITEM_RETURNED"},
	}

	assert.True(t, cfg.IsRequestState("PENDING"))
	assert.False(t, cfg.IsRequestState("ITEM_ON_LOAN"))
	assert.True(t, cfg.IsActiveState("ITEM_ON_LOAN"))
	assert.True(t, cfg.IsCompletedState("ITEM_RETURNED"))
	assert.False(t, cfg.IsCompletedState("CANCELLED"))
}

func TestConflictStates(t *testing.T) {
	cfg := &Config{
		RequestStates: []string{"PENDING"},
		ActiveStates:  []string{"ITEM_ON_LOAN"},
	}
	assert.Equal(t, []string{"PENDING", "ITEM_ON_LOAN"}, cfg.ConflictStates())
}
