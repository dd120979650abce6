package api

import (
	"net/http"

	"github.com/catkins/oauth-bouncer/pkg/services/authflow"
	"github.com/catkins/oauth-bouncer/pkg/services/settings"
	"github.com/labstack/echo/v4"
)

type APIServer struct {
	authService     *authflow.AuthService
	settingsService *settings.SettingsService
	echo            *echo.Echo
}

func NewAPIServer(authService *authflow.AuthService, settingsService *settings.SettingsService) *APIServer {
	e := echo.New()
	s := &APIServer{
		authService:     authService,
		settingsService: settingsService,
		echo:            e,
	}
	s.registerRoutes()
	return s
}

func (s *APIServer) Start() {
	s.echo.Logger.Fatal(s.echo.Start(":8080"))
}

func (s *APIServer) registerRoutes() {
	api := s.echo.Group("/api")
	providers := api.Group("/providers")
	providers.GET("", s.listProviders)
	providers.POST("", s.addProvider)
	providers.PUT("/:name", s.updateProvider)
	providers.DELETE("/:name", s.removeProvider)
	providers.POST("/:name/authorize", s.authorizeProvider)
	providers.POST("/:name/logout", s.logoutProvider)
	api.GET("/status", s.getStatus)
	api.GET("/sessions", s.getSessions)

	settingsGroup := api.Group("/settings")
	settingsGroup.GET("", s.getSettings)
	settingsGroup.POST("/open-config-directory", s.openConfigDirectory)
}

func (s *APIServer) listProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.settingsService.GetProviders())
}

func (s *APIServer) addProvider(c echo.Context) error {
	var config settings.ProviderConfig
	if err := c.Bind(&config); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := s.settingsService.AddProvider(config); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

func (s *APIServer) updateProvider(c echo.Context) error {
	providerName := c.Param("name")
	var config settings.ProviderConfig
	if err := c.Bind(&config); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if err := s.settingsService.UpdateProvider(providerName, config); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (s *APIServer) removeProvider(c echo.Context) error {
	providerName := c.Param("name")
	if err := s.settingsService.RemoveProvider(providerName); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (s *APIServer) authorizeProvider(c echo.Context) error {
	providerName := c.Param("name")
	mode := settings.PresentationMode(c.QueryParam("mode"))
	if err := s.authService.Authorize(c.Request().Context(), providerName, mode); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *APIServer) logoutProvider(c echo.Context) error {
	providerName := c.Param("name")
	if err := s.authService.Logout(providerName); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (s *APIServer) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.authService.Status())
}

func (s *APIServer) getSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.authService.Sessions())
}

func (s *APIServer) getSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.settingsService.GetSettings())
}

func (s *APIServer) openConfigDirectory(c echo.Context) error {
	if err := s.settingsService.OpenConfigDirectory(); err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}
