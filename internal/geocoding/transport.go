package geocoding

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type outgoingLoggerRoundTripper struct {
	transport   http.RoundTripper
	destination string
	logger      *zerolog.Logger
}

func newOutgoingLoggerRoundTripper(transport http.RoundTripper, logger *zerolog.Logger, destination string) *outgoingLoggerRoundTripper {
	return &outgoingLoggerRoundTripper{
		transport:   transport,
		destination: destination,
		logger:      logger,
	}
}

func (r *outgoingLoggerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	message := r.logger.Debug().
		Str("label", "outgoing-request").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("destination", r.destination)

	defer func(startTime time.Time) {
		message.Float64("duration", time.Since(startTime).Seconds()).Msg("")
	}(startTime)

	res, err := r.transport.RoundTrip(req)
	if err != nil {
		message.Str("error", err.Error()).Int("code", 0)
		return nil, err
	}

	message.Int("code", res.StatusCode)

	return res, nil
}
