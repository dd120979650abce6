package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/catkins/oauth-bouncer/pkg/services/authflow"
	"github.com/catkins/oauth-bouncer/pkg/services/browse"
	"github.com/catkins/oauth-bouncer/pkg/services/settings"
)

func TestBridgeServiceEventsForwardsToAppBus(t *testing.T) {
	settingsService := settings.NewSettingsServiceWithPath(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, settingsService.ServiceStartup(context.Background(), application.ServiceOptions{}))
	authService := authflow.NewAuthService(settingsService, browse.NewWailsEnvironment())

	var forwarded []string
	bridgeServiceEvents(func(name string, data any) {
		forwarded = append(forwarded, name)
	}, authService, settingsService)

	require.NoError(t, settingsService.AddProvider(settings.ProviderConfig{
		Name:     "github",
		ClientID: "client-1",
		Enabled:  true,
	}))

	assert.Contains(t, forwarded, "settings:updated")
}
