package trends

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

// DefaultGeo is substituted for absent or disallowed geo codes.
const DefaultGeo = "US"

// DefaultAllowedGeos is the allow-list used when none is configured.
var DefaultAllowedGeos = []string{"US", "GB", "CA", "AU", "IN", "JP", "BR", "MX"}

// GeoValidator restricts geo codes to an allow-list.
type GeoValidator struct {
	allowed    map[string]struct{}
	defaultGeo string
	logger     *zap.Logger
	emitter    events.Emitter
}

// NewGeoValidator builds a validator. The default geo is always allowed.
func NewGeoValidator(allowList []string, defaultGeo string, logger *zap.Logger, emitter events.Emitter) *GeoValidator {
	if defaultGeo == "" {
		defaultGeo = DefaultGeo
	}
	if len(allowList) == 0 {
		allowList = DefaultAllowedGeos
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = events.Nop{}
	}
	allowed := make(map[string]struct{}, len(allowList)+1)
	for _, geo := range allowList {
		allowed[geo] = struct{}{}
	}
	allowed[defaultGeo] = struct{}{}
	return &GeoValidator{
		allowed:    allowed,
		defaultGeo: defaultGeo,
		logger:     logger,
		emitter:    emitter,
	}
}

// Allowed reports allow-list membership.
func (v *GeoValidator) Allowed(geo string) bool {
	_, ok := v.allowed[geo]
	return ok
}

// Validate returns geo unchanged when allowed, otherwise the default. A
// substitution is logged and emitted but is never an error.
func (v *GeoValidator) Validate(ctx context.Context, geo string) string {
	if v.Allowed(geo) {
		return geo
	}
	if geo != "" {
		v.logger.Warn("geo not allowed, substituting default",
			zap.String("geo", geo),
			zap.String("default", v.defaultGeo),
		)
		v.emitter.Emit(events.Event{
			RequestID: events.UUIDToBytes(RequestIDFromContext(ctx)),
			TS:        nowUTC(),
			Stage:     events.StageGeoSubstituted,
			Geo:       geo,
			Note:      "substituted " + v.defaultGeo,
		})
	}
	return v.defaultGeo
}
