package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	mw "github.com/tphakala/leafnet-go/internal/api/middleware"
	"github.com/tphakala/leafnet-go/internal/buildinfo"
	"github.com/tphakala/leafnet-go/internal/errors"
	"github.com/tphakala/leafnet-go/internal/logger"
	"github.com/tphakala/leafnet-go/internal/monitor"
	"github.com/tphakala/leafnet-go/internal/observability/metrics"
)

// RootMessage is the body of the liveness route.
const RootMessage = "Multi-model prediction server is online."

// MissingImageMessage is the validation message for a request without an image.
const MissingImageMessage = "Missing 'image' in request"

// PredictRequest is the body of a predict route.
type PredictRequest struct {
	Image string `json:"image"`
}

// PredictResponse is the body of a successful prediction.
type PredictResponse struct {
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is the body of the root route.
type MessageResponse struct {
	Message string `json:"message"`
}

// SlotStatus describes one loaded slot on the health endpoint.
type SlotStatus struct {
	Name       string `json:"name"`
	Backend    string `json:"backend"`
	Labels     int    `json:"labels"`
	InputShape string `json:"input_shape"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string             `json:"status"`
	Build         buildinfo.Info     `json:"build"`
	Uptime        string             `json:"uptime"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Timestamp     string             `json:"timestamp"`
	Slots         []SlotStatus       `json:"slots"`
	Reencode      bool               `json:"reencode"`
	CacheEntries  int                `json:"cache_entries,omitempty"`
	Resources     *monitor.Resources `json:"resources,omitempty"`
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, MessageResponse{Message: RootMessage})
}

func (s *Server) handleHealth(c echo.Context) error {
	uptime := time.Since(s.startTime)

	slots := make([]SlotStatus, 0, len(s.registry.Names()))
	for _, name := range s.registry.Names() {
		h, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		slots = append(slots, SlotStatus{
			Name:       name,
			Backend:    h.Backend(),
			Labels:     h.NumLabels(),
			InputShape: h.InputShape().String(),
		})
	}

	resp := HealthResponse{
		Status:        "healthy",
		Build:         s.build.Info(),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Timestamp:     time.Now().Format(time.RFC3339),
		Slots:         slots,
		Reencode:      s.decoder.ReencodeEnabled(),
	}
	if s.cache != nil {
		resp.CacheEntries = s.cache.len()
	}
	if s.resources != nil {
		r := s.resources.Sample(c.Request().Context())
		resp.Resources = &r
	}
	return c.JSON(http.StatusOK, resp)
}

// handlePredict returns the handler for one slot: validate, decode, look up
// the slot and run inference.
func (s *Server) handlePredict(slot string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if s.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
			defer cancel()
		}

		payload, err := readImage(c)
		if err != nil {
			return s.predictionFailed(c, slot, err)
		}

		var key string
		if s.cache != nil {
			key = cacheKey(slot, payload)
			resp, hit := s.cache.get(key)
			if s.metrics != nil {
				s.metrics.HTTP.RecordCacheLookup(slot, hit)
			}
			if hit {
				return c.JSON(http.StatusOK, resp)
			}
		}

		decodeStart := time.Now()
		tensor, err := s.decoder.Decode(payload)
		if s.metrics != nil {
			s.metrics.Classifier.RecordDecode(time.Since(decodeStart).Seconds())
		}
		if err != nil {
			return s.predictionFailed(c, slot, err)
		}

		handle, err := s.registry.Get(slot)
		if err != nil {
			return s.predictionFailed(c, slot, err)
		}

		result, err := s.engine.Infer(ctx, handle, tensor)
		if err != nil {
			return s.predictionFailed(c, slot, err)
		}

		resp := PredictResponse{PredictedClass: result.Label, Confidence: result.Confidence}
		if s.cache != nil {
			s.cache.set(key, resp)
		}
		if s.metrics != nil {
			s.metrics.Classifier.RecordClass(slot, result.Label)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// readImage extracts the image payload from a JSON request body.
func readImage(c echo.Context) (string, error) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			// body limit exceeded while reading
			return "", he
		case errors.Is(err, io.EOF):
			return "", validationError(MissingImageMessage)
		default:
			return "", validationError("request body must be a JSON object")
		}
	}

	raw, ok := body["image"]
	if !ok || string(raw) == "null" {
		return "", validationError(MissingImageMessage)
	}

	var image string
	if err := json.Unmarshal(raw, &image); err != nil {
		return "", validationError("'image' must be a base64 string")
	}
	if strings.TrimSpace(image) == "" {
		return "", validationError(MissingImageMessage)
	}
	return image, nil
}

func validationError(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component("api").
		Category(errors.CategoryValidation).
		Build()
}

// predictionFailed renders a pipeline failure as 500 with the public
// message. Framework errors such as an exceeded body limit are passed on to
// the HTTP error handler unchanged.
func (s *Server) predictionFailed(c echo.Context, slot string, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	kind := errors.KindOf(err)
	c.Set(mw.ErrorKindKey, metrics.KindLabel(kind))

	log := GetLogger().WithContext(c.Request().Context())
	fields := []logger.Field{
		logger.String("slot", slot),
		logger.String("kind", string(kind)),
		logger.Error(err),
	}
	if kind == errors.KindValidation || kind == errors.KindDecode {
		log.Debug("prediction request rejected", fields...)
	} else {
		log.Warn("prediction failed", fields...)
	}

	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: errors.PublicMessage(err)})
}

// httpErrorHandler renders errors that escape handlers, such as unknown
// routes, rate limiting, body limits and recovered panics, with the same
// JSON error shape as prediction failures.
func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := errors.PublicMessage(err)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	} else {
		GetLogger().WithContext(c.Request().Context()).Error("unhandled request error",
			logger.String("path", c.Path()),
			logger.Error(err))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, ErrorResponse{Error: msg})
	}
	if writeErr != nil {
		GetLogger().Warn("failed to write error response", logger.Error(writeErr))
	}
}
