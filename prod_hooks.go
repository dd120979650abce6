//go:build !dev

package main

import (
	"github.com/catkins/oauth-bouncer/pkg/services/authflow"
	"github.com/catkins/oauth-bouncer/pkg/services/settings"
)

func startDevServer(authService *authflow.AuthService, settingsService *settings.SettingsService) {
	// Do nothing in production
}
