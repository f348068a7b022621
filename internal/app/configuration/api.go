package configuration

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/form3tech-oss/pact-consumer/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// ServerStatus is one entry of GET /servers.
type ServerStatus struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	Pact         string `json:"pact"`
	Consumer     string `json:"consumer"`
	Provider     string `json:"provider"`
	Interactions int    `json:"interactions"`
	Requests     int    `json:"requests"`
}

// Verification is the body of GET /servers/:name/verification.
type Verification struct {
	OK          bool                `json:"ok"`
	Description string              `json:"description,omitempty"`
	Mismatches  matching.Mismatches `json:"mismatches,omitempty"`
}

type adminAPI struct {
	waitDuration time.Duration
}

func NewAdminAPI(config Config) *echo.Echo {
	api := adminAPI{waitDuration: config.WaitDuration}
	if api.waitDuration == 0 {
		api.waitDuration = defaultDuration
	}

	e := echo.New()
	e.HideBanner = true

	e.GET("/ready", api.readinessHandler)
	e.GET("/servers", api.serversHandler)
	e.DELETE("/servers", api.deleteServersHandler)
	e.GET("/servers/:name/captures", api.capturesHandler)
	e.GET("/servers/:name/verification", api.verificationHandler)
	e.GET("/servers/:name/wait", api.waitHandler)
	e.POST("/servers/:name/reload", api.reloadHandler)
	return e
}

func ServeAdminAPI(config Config) *echo.Echo {
	adminServer := NewAdminAPI(config)

	go func() {
		address := fmt.Sprintf(":%d", config.AdminPort)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func (a *adminAPI) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (a *adminAPI) serversHandler(c echo.Context) error {
	statuses := []ServerStatus{}
	for _, name := range serverNames() {
		rs, ok := loadServer(name)
		if !ok {
			continue
		}
		statuses = append(statuses, ServerStatus{
			Name:         name,
			URL:          rs.server.URL(),
			Pact:         rs.config.Pact,
			Consumer:     rs.pact.Consumer,
			Provider:     rs.pact.Provider,
			Interactions: len(rs.server.Interactions()),
			Requests:     rs.server.RequestCount(),
		})
	}
	return c.JSON(http.StatusOK, statuses)
}

func (a *adminAPI) deleteServersHandler(c echo.Context) error {
	log.Infof("closing all mock servers")
	ShutdownAllServers()
	return c.NoContent(http.StatusNoContent)
}

func serverNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, httpresponse.Errorf("no mock server named '%s'", c.Param("name")))
}

func (a *adminAPI) capturesHandler(c echo.Context) error {
	rs, ok := loadServer(c.Param("name"))
	if !ok {
		return serverNotFound(c)
	}

	if expr := c.QueryParam("select"); expr != "" {
		result, err := rs.server.Query(expr)
		if err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to select captures. %s", err.Error()))
		}
		return c.JSON(http.StatusOK, result)
	}

	captures := rs.server.Captures()
	docs := make([]map[string]interface{}, 0, len(captures))
	for _, capture := range captures {
		docs = append(docs, capture.Document())
	}
	return c.JSON(http.StatusOK, docs)
}

// verificationHandler checks the requests received so far. It answers 500 while
// mismatches remain.
func (a *adminAPI) verificationHandler(c echo.Context) error {
	rs, ok := loadServer(c.Param("name"))
	if !ok {
		return serverNotFound(c)
	}

	mismatches := rs.server.Preview()
	if len(mismatches) == 0 {
		return c.JSON(http.StatusOK, Verification{OK: true})
	}
	log.WithField("mismatches", len(mismatches)).Warnf("verification of mock server '%s' failed", c.Param("name"))
	return c.JSON(http.StatusInternalServerError, Verification{
		Description: mismatches.Description(),
		Mismatches:  mismatches,
	})
}

// waitHandler waits for count requests, or for every interaction to be served when count
// is not given.
func (a *adminAPI) waitHandler(c echo.Context) error {
	rs, ok := loadServer(c.Param("name"))
	if !ok {
		return serverNotFound(c)
	}

	duration := a.waitDuration
	if timeout := c.QueryParam("timeout"); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid timeout '%s'. %s", timeout, err.Error()))
		}
		duration = parsed
	}

	if count := c.QueryParam("count"); count != "" {
		waitForCount, err := strconv.Atoi(count)
		if err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid count '%s'", count))
		}
		log.WithField("count", waitForCount).Infof("waiting for requests to '%s'", c.Param("name"))
		if !rs.server.WaitForRequests(waitForCount, duration) {
			return c.JSON(http.StatusRequestTimeout, httpresponse.Error("timeout waiting for requests"))
		}
		return c.NoContent(http.StatusOK)
	}

	log.Infof("waiting for all interactions of '%s'", c.Param("name"))
	if !rs.server.WaitForInteractions(duration) {
		return c.JSON(http.StatusRequestTimeout, httpresponse.Error("timeout waiting for interactions to be met"))
	}
	return c.NoContent(http.StatusOK)
}

func (a *adminAPI) reloadHandler(c echo.Context) error {
	rs, ok := loadServer(c.Param("name"))
	if !ok {
		return serverNotFound(c)
	}
	if err := ReloadServer(rs.config.Name); err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to reload. %s", err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}
