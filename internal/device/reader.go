// Package device defines the terminal-side boundary of the sync engine.
// The terminal's native protocol is not decoded here; readers speak to an
// on-site agent that exposes the terminal over plain HTTP/JSON.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// TimestampLayout is the wire format terminals report punches in.
const TimestampLayout = "2006-01-02 15:04:05"

// RawPunch is one attendance record as produced by a terminal.
type RawPunch struct {
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
	PunchType int    `json:"punch_type"`
	Status    int    `json:"status"`
}

// Reader fetches the attendance batch held by one terminal.
type Reader interface {
	FetchAttendance(ctx context.Context, host string, port int) ([]RawPunch, error)
}

// Info is the result of a connectivity test.
type Info struct {
	UserCount int    `json:"user_count"`
	Firmware  string `json:"firmware"`
	Serial    string `json:"serial"`
}

// User is one enrolled terminal user.
type User struct {
	UID       int    `json:"uid"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Privilege int    `json:"privilege"`
	Card      string `json:"card"`
}

// AgentReader talks to the terminal agent's HTTP endpoints.
type AgentReader struct {
	client *http.Client
}

func NewAgentReader(timeout time.Duration) *AgentReader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AgentReader{client: &http.Client{Timeout: timeout}}
}

func (r *AgentReader) baseURL(host string, port int) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func (r *AgentReader) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device agent returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *AgentReader) post(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("device agent returned %d", resp.StatusCode)
	}
	return nil
}

func (r *AgentReader) FetchAttendance(ctx context.Context, host string, port int) ([]RawPunch, error) {
	var records []RawPunch
	if err := r.get(ctx, r.baseURL(host, port)+"/attendance", &records); err != nil {
		return nil, fmt.Errorf("fetch attendance from %s:%d: %w", host, port, err)
	}
	return records, nil
}

// TestConnection probes the agent and returns terminal identity details.
func (r *AgentReader) TestConnection(ctx context.Context, host string, port int) (Info, error) {
	var info Info
	if err := r.get(ctx, r.baseURL(host, port)+"/info", &info); err != nil {
		return Info{}, fmt.Errorf("device %s:%d unreachable: %w", host, port, err)
	}
	return info, nil
}

func (r *AgentReader) ListUsers(ctx context.Context, host string, port int) ([]User, error) {
	var users []User
	if err := r.get(ctx, r.baseURL(host, port)+"/users", &users); err != nil {
		return nil, fmt.Errorf("list users from %s:%d: %w", host, port, err)
	}
	return users, nil
}

func (r *AgentReader) SetTime(ctx context.Context, host string, port int, t time.Time) error {
	url := r.baseURL(host, port) + "/time?value=" + t.Format("20060102T150405")
	return r.post(ctx, url)
}

func (r *AgentReader) ClearAttendance(ctx context.Context, host string, port int) error {
	return r.post(ctx, r.baseURL(host, port)+"/attendance/clear")
}

// Probe checks raw TCP reachability without touching the agent protocol.
func Probe(host string, port int, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return fmt.Errorf("device %s:%d unreachable: %w", host, port, err)
	}
	return conn.Close()
}
