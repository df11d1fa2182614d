package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ufmedic/internal/model"
	"ufmedic/pkg/errs"
)

func validRequest() *model.RestartRequest {
	return &model.RestartRequest{
		Host:      "DB01.example.com",
		IP:        "10.0.0.5",
		OSType:    "Linux",
		AlertTime: "2025-06-01T12:00:00Z",
	}
}

func TestAlertData_NormalizesAndDefaults(t *testing.T) {
	req := validRequest()
	require.NoError(t, AlertData(req))

	assert.Equal(t, "db01.example.com", req.Host)
	assert.Equal(t, "linux", req.OSType)
	assert.Equal(t, "uf_silent", req.AlertType)
	assert.Equal(t, "restart_uf", req.Action)
}

func TestAlertData_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.RestartRequest)
		field  string
	}{
		{"empty host", func(r *model.RestartRequest) { r.Host = "" }, "host"},
		{"overlong host", func(r *model.RestartRequest) { r.Host = strings.Repeat("a", 254) }, "host"},
		{"host with shell chars", func(r *model.RestartRequest) { r.Host = "db01;rm -rf" }, "host"},
		{"bad ip", func(r *model.RestartRequest) { r.IP = "10.0.0.999" }, "ip"},
		{"empty ip", func(r *model.RestartRequest) { r.IP = "" }, "ip"},
		{"bad os type", func(r *model.RestartRequest) { r.OSType = "solaris" }, "os_type"},
		{"empty alert time", func(r *model.RestartRequest) { r.AlertTime = "" }, "alert_time"},
		{"bad alert time", func(r *model.RestartRequest) { r.AlertTime = "yesterday" }, "alert_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)

			err := AlertData(req)
			var verr *errs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestIPAddress_AcceptsIPv6(t *testing.T) {
	assert.NoError(t, IPAddress("fe80::1"))
}

func TestAlertTime_AcceptsNaiveISO(t *testing.T) {
	assert.NoError(t, AlertTime("2025-06-01T12:00:00"))
	assert.NoError(t, AlertTime("2025-06-01T12:00:00+08:00"))
}
