package detector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristic_Inspect(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(nil, nil)

	tests := []struct {
		name        string
		body        string
		wantTitle   string
		wantCaptcha bool
	}{
		{
			name:        "captcha marker",
			body:        `<html><head><title> Sorry... </title></head><body>Our systems have detected unusual traffic</body></html>`,
			wantTitle:   "Sorry...",
			wantCaptcha: true,
		},
		{
			name:        "recaptcha widget",
			body:        `<html><head><title>Check</title></head><body><div class="g-recaptcha"></div></body></html>`,
			wantTitle:   "Check",
			wantCaptcha: true,
		},
		{
			name:      "plain error page",
			body:      `<html><head><title>Error 502 (Server Error)</title></head><body>That's an error.</body></html>`,
			wantTitle: "Error 502 (Server Error)",
		},
		{
			name: "empty body",
			body: "   ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := h.Inspect(tt.body)
			require.Equal(t, tt.wantTitle, got.Title)
			require.Equal(t, tt.wantCaptcha, got.Captcha)
		})
	}
}

func TestHeuristic_CustomMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic([]string{"  ", "Access Denied"}, []string{"#blocked"})
	require.True(t, h.Inspect("<p>access denied</p>").Captcha)
	require.True(t, h.Inspect(`<div id="blocked"></div>`).Captcha)
	require.False(t, h.Inspect("<p>captcha</p>").Captcha)
}

func TestHeuristic_Nil(t *testing.T) {
	t.Parallel()

	var h *Heuristic
	require.Zero(t, h.Inspect("<title>x</title>"))
}
