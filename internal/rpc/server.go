// Package rpc serves the stdin/stdout request loop used when the service
// is embedded in a desktop shell.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"biosync/internal/device"
	"biosync/internal/engine"
	"biosync/internal/erpnext"
	"biosync/internal/export"
	"biosync/internal/store"
	"biosync/pkg/protocol"
)

type Server struct {
	store  *store.SQLiteStore
	engine *engine.Engine
	agent  *device.AgentReader
	export *export.Service
}

func NewServer(st *store.SQLiteStore, eng *engine.Engine, agent *device.AgentReader, exp *export.Service) *Server {
	return &Server{store: st, engine: eng, agent: agent, export: exp}
}

// Serve reads one JSON request per line and writes one response per line.
// It returns when the reader is exhausted.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var wmu sync.Mutex
	write := func(resp *protocol.Response) error {
		b, err := resp.Encode()
		if err != nil {
			b, _ = protocol.Fail(resp.ID, protocol.CodeInternal, err.Error()).Encode()
		}
		wmu.Lock()
		defer wmu.Unlock()
		_, err = w.Write(b)
		return err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		req, err := protocol.DecodeRequest(line)
		if err != nil {
			if werr := write(protocol.Fail(nil, protocol.CodeParseError, "parse error: "+err.Error())); werr != nil {
				return werr
			}
			continue
		}
		result, err := s.dispatch(ctx, req.Method, req.Params)
		if err != nil {
			if werr := write(protocol.Fail(req.ID, protocol.CodeApplication, err.Error())); werr != nil {
				return werr
			}
			continue
		}
		if werr := write(protocol.OK(req.ID, result)); werr != nil {
			return werr
		}
	}
	return scanner.Err()
}

type idParams struct {
	ID uint `json:"id"`
}

type deviceParams struct {
	ID uint `json:"id"`
	store.DeviceInput
}

type shiftParams struct {
	ID uint `json:"id"`
	store.ShiftInput
}

type addressParams struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

type pageParams struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type configParams struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func decode(params json.RawMessage, out interface{}) error {
	if len(params) == 0 {
		return nil
	}
	return json.Unmarshal(params, out)
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "initialize":
		// migrations run at store construction; confirm readiness only
		return map[string]bool{"initialized": true}, nil

	case "get_devices":
		return s.store.ListDevices()

	case "add_device":
		var p deviceParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.store.CreateDevice(p.DeviceInput)

	case "update_device":
		var p deviceParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.store.UpdateDevice(p.ID, p.DeviceInput)

	case "delete_device":
		var p idParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if err := s.store.DeleteDevice(p.ID); err != nil {
			return nil, err
		}
		return map[string]uint{"deleted": p.ID}, nil

	case "test_device_connection":
		var p addressParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if p.Port == 0 {
			p.Port = 4370
		}
		if err := device.Probe(p.IP, p.Port, 5*time.Second); err != nil {
			return nil, err
		}
		return s.agent.TestConnection(ctx, p.IP, p.Port)

	case "get_device_users":
		var p idParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		d, err := s.store.GetDevice(p.ID)
		if err != nil {
			return nil, err
		}
		return s.agent.ListUsers(ctx, d.IP, d.Port)

	case "set_device_time":
		var p idParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		d, err := s.store.GetDevice(p.ID)
		if err != nil {
			return nil, err
		}
		if err := s.agent.SetTime(ctx, d.IP, d.Port, time.Now()); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil

	case "clear_device_attendance":
		var p idParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		d, err := s.store.GetDevice(p.ID)
		if err != nil {
			return nil, err
		}
		if err := s.agent.ClearAttendance(ctx, d.IP, d.Port); err != nil {
			return nil, err
		}
		return map[string]bool{"cleared": true}, nil

	case "get_shifts":
		return s.store.ListShifts()

	case "add_shift":
		var p shiftParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.store.CreateShift(p.ShiftInput)

	case "update_shift":
		var p shiftParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		return s.store.UpdateShift(p.ID, p.ShiftInput)

	case "delete_shift":
		var p idParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if err := s.store.DeleteShift(p.ID); err != nil {
			return nil, err
		}
		return map[string]uint{"deleted": p.ID}, nil

	case "run_sync":
		return s.engine.RunSync(ctx), nil

	case "sync_pending_records":
		return s.engine.SyncPending(ctx), nil

	case "get_sync_status":
		return s.engine.Status()

	case "get_sync_history":
		var p pageParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		items, total, err := s.store.ListSyncHistory(p.Page, p.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"history": items, "total": total}, nil

	case "get_attendance_logs":
		var q store.PunchQuery
		if err := decode(params, &q); err != nil {
			return nil, err
		}
		items, total, err := s.store.ListPunches(q)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"logs": items, "total": total}, nil

	case "test_erpnext_connection":
		var cfg erpnext.Config
		if err := decode(params, &cfg); err != nil {
			return nil, err
		}
		return erpnext.NewClient(cfg).TestConnection(ctx)

	case "export_to_excel":
		var p export.Params
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		path, err := s.export.ToExcel(p)
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil

	case "export_to_pdf":
		var p export.Params
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		path, err := s.export.ToPDF(p)
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil

	case "save_config":
		var p configParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		if err := s.store.SaveConfig(p.Key, p.Value); err != nil {
			return nil, err
		}
		return map[string]bool{"saved": true}, nil

	case "get_config":
		var p configParams
		if err := decode(params, &p); err != nil {
			return nil, err
		}
		value, err := s.store.GetConfig(p.Key)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return value, nil

	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}
