// Package validate checks and normalizes incoming alert payloads before a
// task is created for them.
package validate

import (
	"fmt"
	"net"
	"strings"
	"time"

	"ufmedic/internal/model"
	"ufmedic/pkg/errs"
)

const maxHostnameLen = 253

var validOSTypes = map[string]bool{
	"linux":   true,
	"windows": true,
	"unknown": true,
}

// AlertData validates and normalizes a restart request in place. Host and
// os_type are lowercased; defaults are applied for optional fields.
func AlertData(req *model.RestartRequest) error {
	host, err := Hostname(req.Host)
	if err != nil {
		return err
	}
	req.Host = host

	if err := IPAddress(req.IP); err != nil {
		return err
	}

	osType, err := OSType(req.OSType)
	if err != nil {
		return err
	}
	req.OSType = osType

	if err := AlertTime(req.AlertTime); err != nil {
		return err
	}

	if req.AlertType == "" {
		req.AlertType = "uf_silent"
	}
	if req.Action == "" {
		req.Action = "restart_uf"
	}

	return nil
}

// Hostname validates hostname syntax and returns the lowercased form.
func Hostname(hostname string) (string, error) {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" || len(hostname) > maxHostnameLen {
		return "", errs.NewValidationError("host", "invalid hostname")
	}
	for _, c := range hostname {
		if !isHostnameChar(c) {
			return "", errs.NewValidationError("host", "hostname contains invalid characters")
		}
	}
	return strings.ToLower(hostname), nil
}

// IPAddress validates IPv4/IPv6 syntax.
func IPAddress(ip string) error {
	if net.ParseIP(ip) == nil {
		return errs.NewValidationError("ip", "invalid IP address format")
	}
	return nil
}

// OSType validates the OS type enum and returns the lowercased form.
func OSType(osType string) (string, error) {
	lowered := strings.ToLower(osType)
	if !validOSTypes[lowered] {
		return "", errs.NewValidationError("os_type",
			fmt.Sprintf("invalid OS type %q, must be one of: linux, windows, unknown", osType))
	}
	return lowered, nil
}

// AlertTime validates that the alert timestamp parses as ISO-8601. A
// trailing "Z" is accepted as UTC, matching what alert senders emit.
func AlertTime(value string) error {
	if value == "" {
		return errs.NewValidationError("alert_time", "alert_time is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if _, err := time.Parse(layout, value); err == nil {
			return nil
		}
	}
	return errs.NewValidationError("alert_time", "invalid alert_time format, use ISO-8601")
}

func isHostnameChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '-':
		return true
	}
	return false
}
