package main

import (
	"log/slog"
	"os"

	"github.com/catkins/oauth-bouncer/pkg/services/authflow"
	"github.com/catkins/oauth-bouncer/pkg/services/browse"
	"github.com/catkins/oauth-bouncer/pkg/services/settings"
	"github.com/wailsapp/wails/v3/pkg/application"
)

func main() {
	settingsService := settings.NewSettingsService()
	env := browse.NewWailsEnvironment()
	authService := authflow.NewAuthService(settingsService, env)

	app := application.New(application.Options{
		Name:        "OAuth Bouncer",
		Description: "Runs OAuth authorization flows for configured providers",
		Services: []application.Service{
			application.NewService(settingsService),
			application.NewService(authService),
		},
	})
	env.Attach(app)
	bridgeServiceEvents(func(name string, data any) {
		app.Event.Emit(name, data)
	}, authService, settingsService)

	startDevServer(authService, settingsService)

	if err := app.Run(); err != nil {
		slog.Error("Application exited with error", "error", err)
		os.Exit(1)
	}
}

// bridgeServiceEvents forwards service CustomEvents onto the application
// event bus so the frontend sees them.
func bridgeServiceEvents(emit func(name string, data any), authService *authflow.AuthService, settingsService *settings.SettingsService) {
	authService.Subscribe(func(e *application.CustomEvent) {
		emit(e.Name, e.Data)
	})
	settingsService.Subscribe(func(e *application.CustomEvent) {
		emit(e.Name, e.Data)
	})
}
