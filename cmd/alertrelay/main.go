// alertrelay forwards a "forwarder is silent" alert from the monitoring
// side to the remediation service. It is meant to run as an alert action,
// so it is deliberately small: build the payload, post it, retry on
// transient failures and exit non-zero when the alert could not be
// delivered.
//
// Its retry policy is its own. The remediation service retries playbook
// runs with a separate, independently configured policy.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"ufmedic/internal/model"
	"ufmedic/pkg/logger"
	"ufmedic/pkg/retry"
)

type transientError struct {
	status int
	body   string
}

func (e *transientError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.status, e.body)
}

func main() {
	var (
		server        = flag.String("server", "http://localhost:7000", "remediation service base URL")
		apiKey        = flag.String("api-key", os.Getenv("UFMEDIC_API_KEY"), "bearer API key (defaults to UFMEDIC_API_KEY)")
		host          = flag.String("host", "", "silent forwarder hostname")
		ip            = flag.String("ip", "", "silent forwarder IP address")
		osType        = flag.String("os-type", "", "target OS type (linux, windows, unknown)")
		osName        = flag.String("os-name", "", "OS name as reported by the forwarder")
		minutesSilent = flag.String("minutes-silent", "", "minutes since the forwarder last reported")
		lastSeen      = flag.String("last-seen", "", "last time the forwarder reported")
		alertTime     = flag.String("alert-time", time.Now().UTC().Format(time.RFC3339), "alert timestamp")
		fromStdin     = flag.Bool("stdin", false, "read the alert payload as JSON from stdin instead of flags")
		timeout       = flag.Duration("timeout", 60*time.Second, "overall delivery budget including retries")
	)
	flag.Parse()

	req, err := buildRequest(*fromStdin, *host, *ip, *osType, *osName, *minutesSilent, *lastSeen, *alertTime)
	if err != nil {
		logger.Errorf("invalid alert: %v", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	task, err := deliver(ctx, *server, *apiKey, req, *timeout)
	if err != nil {
		logger.Errorf("failed to deliver alert for host %s: %v", req.Host, err)
		os.Exit(1)
	}

	logger.Infof("restart task %s accepted for host %s", task.ID, task.Host)
}

func buildRequest(fromStdin bool, host, ip, osType, osName, minutesSilent, lastSeen, alertTime string) (*model.RestartRequest, error) {
	if fromStdin {
		var req model.RestartRequest
		if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
			return nil, fmt.Errorf("failed to parse stdin payload: %w", err)
		}
		return &req, nil
	}

	if host == "" || ip == "" || osType == "" {
		return nil, fmt.Errorf("-host, -ip and -os-type are required (or use -stdin)")
	}
	return &model.RestartRequest{
		Host:          host,
		IP:            ip,
		OSType:        osType,
		OSName:        osName,
		MinutesSilent: minutesSilent,
		LastSeen:      lastSeen,
		AlertTime:     alertTime,
	}, nil
}

// deliver posts the alert, retrying connection failures and 5xx/429
// responses. 4xx responses are final; resending a rejected payload will
// not make it valid.
func deliver(ctx context.Context, server, apiKey string, req *model.RestartRequest, budget time.Duration) (*model.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	cfg := retry.Config{
		MaxRetries:    3,
		BaseDelay:     2 * time.Second,
		MaxDelay:      15 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		Timeout:       budget,
		Retryable: func(err error) bool {
			var terr *transientError
			if errors.As(err, &terr) {
				return terr.status >= 500 || terr.status == http.StatusTooManyRequests
			}
			// Connection refused, DNS failure, client timeout.
			return true
		},
	}

	var task model.Task
	err = retry.Do(ctx, cfg, "deliver alert "+req.Host, func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/restart-uf", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
			return &transientError{status: resp.StatusCode, body: string(body)}
		}
		return json.Unmarshal(body, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}
