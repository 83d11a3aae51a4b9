package wallbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/nordvolt/wallbox-core/internal/infrastructure/config"
)

// Client talks to one wallbox device over its local HTTP API.
//
// The device cannot handle concurrent requests; Client performs no
// serialization of its own and must only be driven through the
// command executor.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// New creates a device client from configuration.
//
// Parameters:
//   - cfg: Device connection settings from config.yaml
//
// Returns:
//   - *Client: Ready client (no connection is attempted here)
//   - error: ErrInvalidConfig if the host is missing
func New(cfg config.DeviceConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: device host is required", ErrInvalidConfig)
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:  fmt.Sprintf("http://%s/api", cfg.Host),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Invoke dispatches a Method with untyped arguments to the matching
// typed call. Argument count and types are validated before any network
// traffic; a mismatch returns ErrInvalidArgs.
//
// Operations without a meaningful result return a nil value on success.
func (c *Client) Invoke(ctx context.Context, method Method, args ...any) (any, error) {
	switch method {
	case MethodInfoSerialGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.InfoSerialGet(ctx)

	case MethodInfoFirmwaresGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.InfoFirmwaresGet(ctx)

	case MethodSetupGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.SetupGet(ctx)

	case MethodConfigLoadGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.ConfigLoadGet(ctx)

	case MethodConfigLoadSet:
		if err := wantArgs(method, args, 1); err != nil {
			return nil, err
		}
		amperes, ok := args[0].(int)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects an int current, got %T", ErrInvalidArgs, method, args[0])
		}
		return nil, c.ConfigLoadSet(ctx, amperes)

	case MethodConfigNetworkStatus:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.ConfigNetworkStatus(ctx)

	case MethodAtmelErrorGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.AtmelErrorGet(ctx)

	case MethodTransactionGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.TransactionGet(ctx)

	case MethodTransactionStart:
		if err := wantArgs(method, args, 1); err != nil {
			return nil, err
		}
		tagID, ok := args[0].([]int)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a []int tag ID, got %T", ErrInvalidArgs, method, args[0])
		}
		return nil, c.TransactionStart(ctx, tagID)

	case MethodTransactionStop:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.TransactionStop(ctx)

	case MethodTransactionLatestGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.TransactionLatestGet(ctx)

	case MethodRFIDGet:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.RFIDGet(ctx)

	case MethodRFIDScan:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return c.RFIDScan(ctx)

	case MethodRFIDAdd:
		if err := wantArgs(method, args, 2); err != nil {
			return nil, err
		}
		tagID, ok := args[0].([]int)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a []int tag ID, got %T", ErrInvalidArgs, method, args[0])
		}
		name, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string name, got %T", ErrInvalidArgs, method, args[1])
		}
		return nil, c.RFIDAdd(ctx, tagID, name)

	case MethodRFIDDelete:
		if err := wantArgs(method, args, 1); err != nil {
			return nil, err
		}
		tagID, ok := args[0].([]int)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a []int tag ID, got %T", ErrInvalidArgs, method, args[0])
		}
		return nil, c.RFIDDelete(ctx, tagID)

	case MethodUtilRestart:
		if err := wantArgs(method, args, 0); err != nil {
			return nil, err
		}
		return nil, c.UtilRestart(ctx)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

func wantArgs(method Method, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s expects %d argument(s), got %d", ErrInvalidArgs, method, n, len(args))
	}
	return nil
}

// InfoSerialGet fetches the device serial number.
func (c *Client) InfoSerialGet(ctx context.Context) (SerialInfo, error) {
	var out SerialInfo
	err := c.do(ctx, http.MethodGet, "/info/serial", nil, &out, MethodInfoSerialGet)
	return out, err
}

// InfoFirmwaresGet fetches the firmware versions of both controllers.
func (c *Client) InfoFirmwaresGet(ctx context.Context) (FirmwareVersions, error) {
	var out FirmwareVersions
	err := c.do(ctx, http.MethodGet, "/info/firmwares", nil, &out, MethodInfoFirmwaresGet)
	return out, err
}

// SetupGet fetches the outstanding setup issue flags.
func (c *Client) SetupGet(ctx context.Context) (SetupStatus, error) {
	var out SetupStatus
	err := c.do(ctx, http.MethodGet, "/setup", nil, &out, MethodSetupGet)
	return out, err
}

// ConfigLoadGet fetches the configured maximum charging current.
func (c *Client) ConfigLoadGet(ctx context.Context) (LoadConfig, error) {
	var out LoadConfig
	err := c.do(ctx, http.MethodGet, "/config/load", nil, &out, MethodConfigLoadGet)
	return out, err
}

// ConfigLoadSet writes a new maximum charging current in amperes.
func (c *Client) ConfigLoadSet(ctx context.Context, amperes int) error {
	body := LoadConfig{MaxCurrent: amperes}
	return c.do(ctx, http.MethodPost, "/config/load", body, nil, MethodConfigLoadSet)
}

// ConfigNetworkStatus fetches the link state of the network interfaces.
func (c *Client) ConfigNetworkStatus(ctx context.Context) (NetworkStatus, error) {
	var out NetworkStatus
	err := c.do(ctx, http.MethodGet, "/config/network/status", nil, &out, MethodConfigNetworkStatus)
	return out, err
}

// AtmelErrorGet fetches the charge controller error flag.
func (c *Client) AtmelErrorGet(ctx context.Context) (ErrorFlags, error) {
	var out ErrorFlags
	err := c.do(ctx, http.MethodGet, "/atmel/error", nil, &out, MethodAtmelErrorGet)
	return out, err
}

// TransactionGet fetches the live charge point state.
func (c *Client) TransactionGet(ctx context.Context) (TransactionStatus, error) {
	var out TransactionStatus
	err := c.do(ctx, http.MethodGet, "/transaction", nil, &out, MethodTransactionGet)
	return out, err
}

// TransactionStart begins a charging session authorized by the given tag.
func (c *Client) TransactionStart(ctx context.Context, tagID []int) error {
	body := map[string]any{"tagId": tagID}
	return c.do(ctx, http.MethodPost, "/transaction/start", body, nil, MethodTransactionStart)
}

// TransactionStop ends the active charging session and returns its record.
// The device reports kind "NotFound" when no session is active.
func (c *Client) TransactionStop(ctx context.Context) (TransactionRecord, error) {
	var out TransactionRecord
	err := c.do(ctx, http.MethodPost, "/transaction/stop", nil, &out, MethodTransactionStop)
	return out, err
}

// TransactionLatestGet fetches the device's recent transaction log.
func (c *Client) TransactionLatestGet(ctx context.Context) ([]TransactionRecord, error) {
	var out []TransactionRecord
	err := c.do(ctx, http.MethodGet, "/transaction/latest", nil, &out, MethodTransactionLatestGet)
	return out, err
}

// RFIDGet fetches the authorized tag list.
func (c *Client) RFIDGet(ctx context.Context) ([]RFIDTag, error) {
	var out []RFIDTag
	err := c.do(ctx, http.MethodGet, "/rfid", nil, &out, MethodRFIDGet)
	return out, err
}

// RFIDScan puts the reader into scan mode and returns the ID of the
// next tag presented. The call blocks on the device until a tag is
// read or the device's own scan window lapses.
func (c *Client) RFIDScan(ctx context.Context) ([]int, error) {
	var out struct {
		TagID []int `json:"tagId"`
	}
	err := c.do(ctx, http.MethodPost, "/rfid/scan", nil, &out, MethodRFIDScan)
	return out.TagID, err
}

// RFIDAdd stores a scanned tag under the given display name.
func (c *Client) RFIDAdd(ctx context.Context, tagID []int, name string) error {
	body := RFIDTag{TagID: tagID, Name: name}
	return c.do(ctx, http.MethodPost, "/rfid", body, nil, MethodRFIDAdd)
}

// RFIDDelete removes a stored tag.
func (c *Client) RFIDDelete(ctx context.Context, tagID []int) error {
	body := map[string]any{"tagId": tagID}
	return c.do(ctx, http.MethodDelete, "/rfid", body, nil, MethodRFIDDelete)
}

// UtilRestart reboots the device. The connection usually drops before
// the response arrives; the executor treats that as success.
func (c *Client) UtilRestart(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/util/restart", nil, nil, MethodUtilRestart)
}

// do performs one HTTP exchange: marshal body, send with basic auth,
// classify transport failures, decode device errors, decode the result.
func (c *Client) do(ctx context.Context, httpMethod, path string, body, out any, op Method) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("wallbox: encoding %s request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("wallbox: building %s request: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeDeviceError(op, resp)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wallbox: decoding %s response: %w", op, err)
	}
	return nil
}

// classifyTransportError separates the two connectivity subkinds the
// supervisor cares about (timeout, connection refused) from everything
// else, which propagates as unexpected.
func classifyTransportError(op Method, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ConnectivityError{Op: op.String(), Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectivityError{Op: op.String(), Err: err}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return &ConnectivityError{Op: op.String(), Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &ConnectivityError{Op: op.String(), Err: err}
	}

	return fmt.Errorf("wallbox: %s request failed: %w", op, err)
}

// decodeDeviceError turns a non-2xx response into a DeviceError. The
// device answers failures with {"kind": ..., "message": ...}; anything
// unparseable becomes a DeviceError with the HTTP status as its kind.
func decodeDeviceError(op Method, resp *http.Response) error {
	var payload struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && json.Unmarshal(data, &payload) == nil && payload.Kind != "" {
		return &DeviceError{Kind: payload.Kind, Message: payload.Message}
	}

	return &DeviceError{
		Kind:    http.StatusText(resp.StatusCode),
		Message: fmt.Sprintf("%s returned HTTP %d", op, resp.StatusCode),
	}
}
