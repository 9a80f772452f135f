package httpapi

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weathergrid/internal/dashboard"
	"github.com/i474232898/weathergrid/internal/location"
	"github.com/i474232898/weathergrid/internal/weather"
)

var validate = validator.New()

// minQueryLength is the shortest query sent to the geocoder.
const minQueryLength = 3

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, resolver *location.Resolver, board *dashboard.Dashboard) {
	h := &handlers{service: service, resolver: resolver, board: board}

	v1 := app.Group("/api/v1")

	v1.Get("/state", h.state)

	v1.Get("/locations/search", h.search)
	v1.Get("/locations/popular", h.popular)
	v1.Post("/locations", h.addLocation)
	v1.Put("/locations/current", h.selectLocation)
	v1.Delete("/locations", h.removeLocation)
	v1.Put("/home", h.setHome)

	v1.Post("/searches", h.recordSearch)
	v1.Post("/searches/replay", h.replaySearch)

	v1.Post("/geolocation", h.reportPosition)
	v1.Post("/geolocation/locate", h.locate)

	v1.Put("/theme", h.setTheme)
	v1.Post("/theme/toggle", h.toggleTheme)
	v1.Post("/sidebar/toggle", h.toggleSidebar)

	v1.Get("/weather", h.currentWeather)
	v1.Post("/weather/reload", h.reload)
	v1.Get("/weather/lookup", h.lookup)
}

type handlers struct {
	service  *weather.Service
	resolver *location.Resolver
	board    *dashboard.Dashboard
}

// locationSummary is a location together with its display name.
type locationSummary struct {
	weather.Location
	Name    string `json:"name"`
	Details string `json:"details"`
}

func summarize(locs []weather.Location) []locationSummary {
	out := make([]locationSummary, 0, len(locs))
	for _, l := range locs {
		name, details := location.DisplayName(l)
		out = append(out, locationSummary{Location: l, Name: name, Details: details})
	}
	return out
}

func (h *handlers) state(c *fiber.Ctx) error {
	return c.JSON(h.resolver.Snapshot())
}

func (h *handlers) search(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if len([]rune(q)) < minQueryLength {
		return fiber.NewError(fiber.StatusBadRequest, "query must be at least 3 characters")
	}

	locs, err := h.service.Search(c.UserContext(), q)
	if err != nil {
		return searchError(err)
	}

	return c.JSON(fiber.Map{
		"query":   q,
		"results": summarize(locs),
	})
}

func (h *handlers) popular(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"results": summarize(location.PopularCities())})
}

func (h *handlers) addLocation(c *fiber.Ctx) error {
	loc, err := parseLocationBody(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	// The save completes in the background; the response reflects phase one.
	h.resolver.Add(loc)
	return c.Status(fiber.StatusAccepted).JSON(h.resolver.Snapshot())
}

func (h *handlers) selectLocation(c *fiber.Ctx) error {
	loc, err := parseLocationBody(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	h.resolver.Select(loc)
	return c.JSON(h.resolver.Snapshot())
}

func (h *handlers) removeLocation(c *fiber.Ctx) error {
	pos, err := parseCoordinates(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	h.resolver.Remove(weather.Location{Lat: pos.Lat, Lng: pos.Lng})
	return c.JSON(h.resolver.Snapshot())
}

func (h *handlers) setHome(c *fiber.Ctx) error {
	loc, err := parseLocationBody(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	h.resolver.SetHome(loc)
	return c.JSON(h.resolver.Snapshot())
}

type searchRequest struct {
	Query string `json:"query" validate:"required"`
}

func (h *handlers) recordSearch(c *fiber.Ctx) error {
	var req searchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	h.resolver.RecordSearch(req.Query)
	return c.JSON(h.resolver.Snapshot())
}

// replaySearch re-runs a recent or popular search and adds the best match.
// Both the clicked term and the match's name are recorded as recent searches.
func (h *handlers) replaySearch(c *fiber.Ctx) error {
	var req searchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	q := strings.TrimSpace(req.Query)
	if len([]rune(q)) < minQueryLength {
		return fiber.NewError(fiber.StatusBadRequest, "query must be at least 3 characters")
	}

	h.resolver.RecordSearch(q)

	locs, err := h.service.Search(c.UserContext(), q)
	if err != nil {
		return searchError(err)
	}
	if len(locs) == 0 {
		return c.JSON(fiber.Map{
			"found":   false,
			"message": "No locations found for your query.",
			"state":   h.resolver.Snapshot(),
		})
	}

	best := locs[0]
	name, _ := location.DisplayName(best)
	h.resolver.RecordSearch(name)
	h.resolver.Add(best)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"found":    true,
		"location": best,
		"state":    h.resolver.Snapshot(),
	})
}

// positionReport is what a browser sends after its own geolocation request:
// either coordinates or an error code name.
type positionReport struct {
	Lat   *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng   *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	Error string   `json:"error" validate:"omitempty,oneof=permission_denied position_unavailable timeout unsupported unknown"`
}

func (h *handlers) reportPosition(c *fiber.Ctx) error {
	var req positionReport
	if err := bindAndValidate(c, &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	switch {
	case req.Error != "":
		h.resolver.ApplyPositionError(location.ParsePositionErrorCode(req.Error))
	case req.Lat == nil || req.Lng == nil:
		return fiber.NewError(fiber.StatusBadRequest, "either lat and lng or error is required")
	default:
		h.resolver.ApplyPosition(c.UserContext(), location.Position{Lat: *req.Lat, Lng: *req.Lng})
	}
	return c.JSON(h.resolver.Snapshot())
}

func (h *handlers) locate(c *fiber.Ctx) error {
	if err := h.resolver.UseCurrentLocation(c.UserContext()); err != nil {
		log.WithError(err).Debug("server-side geolocation failed")
	}
	// The outcome, including any error message, is part of the state.
	return c.JSON(h.resolver.Snapshot())
}

type themeRequest struct {
	DarkMode *bool `json:"darkMode" validate:"required"`
}

func (h *handlers) setTheme(c *fiber.Ctx) error {
	var req themeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	h.resolver.SetDarkMode(*req.DarkMode)
	return c.JSON(fiber.Map{"darkMode": *req.DarkMode})
}

func (h *handlers) toggleTheme(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"darkMode": h.resolver.ToggleDarkMode()})
}

func (h *handlers) toggleSidebar(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"sidebarOpen": h.resolver.ToggleSidebar()})
}

func (h *handlers) currentWeather(c *fiber.Ctx) error {
	return c.JSON(h.board.View())
}

func (h *handlers) reload(c *fiber.Ctx) error {
	h.board.Reload()
	return c.Status(fiber.StatusAccepted).JSON(h.board.View())
}

// lookup fetches weather for arbitrary coordinates without touching the dashboard.
func (h *handlers) lookup(c *fiber.Ctx) error {
	pos, err := parseCoordinates(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc := weather.Location{Lat: pos.Lat, Lng: pos.Lng}
	report, err := h.service.Fetch(c.UserContext(), loc)
	if err != nil {
		fe := weather.Classify(err)
		return fiber.NewError(statusForFailure(fe.Class), fe.UserMessage())
	}

	return c.JSON(fiber.Map{
		"report":        report,
		"highlights":    weather.BuildHighlights(report.Conditions),
		"forecastRange": report.Forecast.Range(),
	})
}

func statusForFailure(class weather.FailureClass) int {
	switch class {
	case weather.FailureRateLimited:
		return fiber.StatusTooManyRequests
	case weather.FailureServiceUnavailable:
		return fiber.StatusServiceUnavailable
	case weather.FailureNetwork:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusBadGateway
	}
}

func searchError(err error) error {
	if errors.Is(err, weather.ErrSearchFailed) {
		return fiber.NewError(fiber.StatusBadGateway, "Failed to search locations")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "Failed to search locations")
}

func bindAndValidate(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return errors.New("invalid request body")
	}
	return validate.Struct(v)
}

func parseLocationBody(c *fiber.Ctx) (weather.Location, error) {
	var loc weather.Location
	if err := bindAndValidate(c, &loc); err != nil {
		return loc, err
	}
	return loc, nil
}

// parseCoordinates reads lat/lng query parameters.
func parseCoordinates(c *fiber.Ctx) (location.Position, error) {
	var pos location.Position

	latStr, lngStr := c.Query("lat"), c.Query("lng")
	if latStr == "" || lngStr == "" {
		return pos, errors.New("lat and lng query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return pos, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return pos, errors.New("invalid lng")
	}

	pos = location.Position{Lat: lat, Lng: lng}
	if err := validate.Struct(pos); err != nil {
		return pos, err
	}
	return pos, nil
}
