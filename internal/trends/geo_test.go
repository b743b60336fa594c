package trends

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/trends-gateway/internal/events"
)

func TestGeoValidatorValidate(t *testing.T) {
	t.Parallel()

	emitter := &recordingEmitter{}
	v := NewGeoValidator(nil, "", nil, emitter)

	inputs := []string{"US", "GB", "JP", "FR", "us", "", "ZZ", " US"}
	for _, geo := range inputs {
		got := v.Validate(context.Background(), geo)
		if v.Allowed(geo) {
			require.Equal(t, geo, got)
		} else {
			require.Equal(t, DefaultGeo, got)
		}
	}

	// FR, us, ZZ and " US" are substituted; the empty geo is silent.
	require.Len(t, emitter.Stages(), 4)
	for _, stage := range emitter.Stages() {
		require.Equal(t, events.StageGeoSubstituted, stage)
	}
}

func TestGeoValidatorCustomAllowList(t *testing.T) {
	t.Parallel()

	v := NewGeoValidator([]string{"FR", "DE"}, "DE", nil, nil)
	require.Equal(t, "DE", v.Validate(context.Background(), ""))
	require.Equal(t, "FR", v.Validate(context.Background(), "FR"))
	require.Equal(t, "DE", v.Validate(context.Background(), "US"))
}

func TestGeoValidatorDefaultAlwaysAllowed(t *testing.T) {
	t.Parallel()

	v := NewGeoValidator([]string{"GB"}, "CA", nil, nil)
	require.True(t, v.Allowed("CA"))
	require.Equal(t, "CA", v.Validate(context.Background(), "CA"))
}
