package httpapi

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/stopweather/internal/scheduler"
	"github.com/i474232898/stopweather/internal/store"
	"github.com/i474232898/stopweather/internal/weather"
)

var validate = validator.New()

// CycleTrigger starts an on-demand polling cycle.
type CycleTrigger interface {
	Trigger() (time.Time, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
// cycles may be nil, in which case POST /api/v1/cycles answers 503.
func RegisterRoutes(app *fiber.App, service *weather.Service, cycles CycleTrigger) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"providers": service.Providers(),
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/locations", func(c *fiber.Ctx) error {
		locs, err := service.Locations(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list locations")
		}
		if locs == nil {
			locs = []weather.Location{}
		}
		return c.JSON(locs)
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		q, err := parseStopQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		observations, summary, err := service.GetLatest(c.UserContext(), q.StopID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested stop")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}

		return c.JSON(fiber.Map{
			"stopId":       q.StopID,
			"summary":      summary,
			"observations": observations,
		})
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		observations, err := service.GetRange(c.UserContext(), req.Stop.StopID, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"stopId":       req.Stop.StopID,
			"from":         req.From,
			"to":           req.To,
			"observations": observations,
		})
	})

	v1.Post("/cycles", func(c *fiber.Ctx) error {
		if cycles == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "polling is not scheduled in this process")
		}
		slot, err := cycles.Trigger()
		if err != nil {
			if errors.Is(err, scheduler.ErrCycleRunning) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			if errors.Is(err, context.Canceled) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "shutting down")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to start cycle")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"slot": slot})
	})
}

// stopQuery identifies a bus stop by its id.
type stopQuery struct {
	StopID int64 `validate:"required,gt=0"`
}

func parseStopQuery(c *fiber.Ctx) (stopQuery, error) {
	var q stopQuery

	raw := c.Query("stop_id")
	if raw == "" {
		return q, errors.New("stop_id query parameter is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return q, errors.New("stop_id must be an integer")
	}
	q.StopID = id

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Stop stopQuery
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	stop, err := parseStopQuery(c)
	if err != nil {
		return err
	}
	h.Stop = stop

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
