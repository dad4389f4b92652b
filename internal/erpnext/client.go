// Package erpnext is the remote push boundary: it records punches in an
// ERPNext/HRMS instance and classifies every response into success,
// permissible skip, or hard failure.
package erpnext

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotConfigured      = errors.New("remote system not configured")
	ErrInvalidCredentials = errors.New("invalid API credentials")
	ErrAccessDenied       = errors.New("access denied - check user permissions")
)

// Config is the connection settings blob stored under the "erpnext" key.
type Config struct {
	URL       string `json:"url"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
	Version   int    `json:"version"`
}

func (c Config) valid() bool {
	return c.URL != "" && c.APIKey != ""
}

// checkin endpoints by remote version: 14+ ships the HRMS app, older
// installs carry the module inside ERPNext itself.
const (
	hrmsCheckinPath   = "/api/method/hrms.hr.doctype.employee_checkin.employee_checkin.add_log_based_on_employee_field"
	legacyCheckinPath = "/api/method/erpnext.hr.doctype.employee_checkin.employee_checkin.add_log_based_on_employee_field"
	loggedUserPath    = "/api/method/frappe.auth.get_logged_user"
)

// permissibleSkipReasons is the maintained allow-list of remote rejections
// that terminate a punch successfully: retrying them would repeat the same
// rejection forever. Matched case-insensitively as substrings of the remote
// error text, because ERPNext reports them in free-form messages.
var permissibleSkipReasons = []string{
	"no employee found",
	"this employee is inactive",
	"already checked in",
	"duplicate",
}

func isPermissibleSkip(message string) bool {
	lower := strings.ToLower(message)
	for _, reason := range permissibleSkipReasons {
		if strings.Contains(lower, reason) {
			return true
		}
	}
	return false
}

// CheckinRequest carries one punch plus device-derived metadata.
type CheckinRequest struct {
	EmployeeFieldValue string
	Timestamp          string
	DeviceID           string
	LogType            string
	Latitude           *float64
	Longitude          *float64
}

// PushResult is the classified outcome of a push. Either Success or Skipped
// is set; hard failures come back as errors instead.
type PushResult struct {
	Success bool            `json:"success"`
	Skipped bool            `json:"skipped"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"raw_response,omitempty"`
}

// ConnectionInfo is returned by TestConnection.
type ConnectionInfo struct {
	User     string `json:"user"`
	SiteName string `json:"site_name"`
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.Version == 0 {
		cfg.Version = 15
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) checkinEndpoint() string {
	if c.cfg.Version >= 14 {
		return hrmsCheckinPath
	}
	return legacyCheckinPath
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.cfg.APIKey+":"+c.cfg.APISecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

// Push records one punch remotely. Permissible-skip rejections come back
// with Skipped set and a nil error; anything else non-200 is a hard failure.
func (c *Client) Push(ctx context.Context, in CheckinRequest) (PushResult, error) {
	if !c.cfg.valid() {
		return PushResult{}, ErrNotConfigured
	}

	payload := map[string]interface{}{
		"employee_field_value": in.EmployeeFieldValue,
		"timestamp":            in.Timestamp,
		"device_id":            in.DeviceID,
	}
	if payload["device_id"] == "" {
		payload["device_id"] = "biosync"
	}
	if in.LogType != "" {
		payload["log_type"] = in.LogType
	}
	if in.Latitude != nil && in.Longitude != nil {
		payload["latitude"] = *in.Latitude
		payload["longitude"] = *in.Longitude
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return PushResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+c.checkinEndpoint(), bytes.NewReader(body))
	if err != nil {
		return PushResult{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PushResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return PushResult{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var parsed struct {
			Message json.RawMessage `json:"message"`
		}
		message := ""
		if json.Unmarshal(raw, &parsed) == nil {
			// string payloads are stored unquoted; objects keep their JSON
			var s string
			if json.Unmarshal(parsed.Message, &s) == nil {
				message = s
			} else {
				message = string(parsed.Message)
			}
		}
		return PushResult{Success: true, Message: message, Raw: raw}, nil
	}

	message := extractErrorMessage(raw)
	if isPermissibleSkip(message) {
		return PushResult{Skipped: true, Message: message, Raw: raw}, nil
	}
	return PushResult{}, fmt.Errorf("remote rejected punch: %s", message)
}

// extractErrorMessage pulls the most useful error text out of an ERPNext
// error payload: exc_type first, then message, then the whole body.
func extractErrorMessage(raw []byte) string {
	var parsed struct {
		ExcType string          `json:"exc_type"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.ExcType != "" {
			return parsed.ExcType
		}
		var msg string
		if json.Unmarshal(parsed.Message, &msg) == nil && msg != "" {
			return msg
		}
		if len(parsed.Message) > 0 {
			return string(parsed.Message)
		}
	}
	return string(raw)
}

// TestConnection verifies the credentials against the remote auth endpoint.
func (c *Client) TestConnection(ctx context.Context) (ConnectionInfo, error) {
	if !c.cfg.valid() {
		return ConnectionInfo{}, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL+loggedUserPath, nil)
	if err != nil {
		return ConnectionInfo{}, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ConnectionInfo{}, fmt.Errorf("could not connect to server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var parsed struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return ConnectionInfo{}, err
		}
		return ConnectionInfo{User: parsed.Message, SiteName: c.cfg.URL}, nil
	case http.StatusUnauthorized:
		return ConnectionInfo{}, ErrInvalidCredentials
	case http.StatusForbidden:
		return ConnectionInfo{}, ErrAccessDenied
	default:
		return ConnectionInfo{}, fmt.Errorf("server error: %d", resp.StatusCode)
	}
}
