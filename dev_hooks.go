//go:build dev

package main

import (
	"github.com/catkins/oauth-bouncer/pkg/api"
	"github.com/catkins/oauth-bouncer/pkg/services/authflow"
	"github.com/catkins/oauth-bouncer/pkg/services/settings"
)

func startDevServer(authService *authflow.AuthService, settingsService *settings.SettingsService) {
	apiServer := api.NewAPIServer(authService, settingsService)
	go apiServer.Start()
}
