package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hitoshi/cropid/internal/model"
)

// deviceListResponse はデバイス一覧エンドポイントの応答形式。
type deviceListResponse struct {
	Devices []model.Device `json:"devices"`
	Total   int            `json:"total"`
}

// RegisterDevice は信頼候補のデバイスを登録する。ベアラー資格情報が必要。
func (c *Client) RegisterDevice(ctx context.Context, device model.Device) (*model.Device, error) {
	if device.DeviceID == "" {
		return nil, model.NewValidationError("device_id", "must not be empty")
	}
	if strings.TrimSpace(device.DeviceName) == "" {
		return nil, model.NewValidationError("device_name", "must not be empty")
	}

	var registered model.Device
	req := map[string]any{
		"device_id":   device.DeviceID,
		"device_name": device.DeviceName,
		"device_type": device.DeviceType,
	}
	if err := c.do(ctx, "register_device", "POST", "/login/devices/register", req, &registered, true); err != nil {
		return nil, err
	}
	return &registered, nil
}

// ListDevices は登録済みデバイスの一覧を返す。ベアラー資格情報が必要。
func (c *Client) ListDevices(ctx context.Context) ([]model.Device, int, error) {
	var resp deviceListResponse
	if err := c.do(ctx, "list_devices", "GET", "/login/devices", nil, &resp, true); err != nil {
		return nil, 0, err
	}
	return resp.Devices, resp.Total, nil
}

// SetDeviceTrust はデバイスの信頼状態を変更する。ベアラー資格情報が必要。
func (c *Client) SetDeviceTrust(ctx context.Context, deviceID string, trust bool) (*model.Device, error) {
	if deviceID == "" {
		return nil, model.NewValidationError("device_id", "must not be empty")
	}

	var device model.Device
	path := fmt.Sprintf("/login/devices/%s/trust", url.PathEscape(deviceID))
	req := map[string]bool{"trust": trust}
	if err := c.do(ctx, "set_device_trust", "POST", path, req, &device, true); err != nil {
		return nil, err
	}
	return &device, nil
}

// RemoveDevice はデバイスを削除する。ベアラー資格情報が必要。
func (c *Client) RemoveDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return model.NewValidationError("device_id", "must not be empty")
	}
	path := fmt.Sprintf("/login/devices/%s", url.PathEscape(deviceID))
	return c.do(ctx, "remove_device", "DELETE", path, nil, nil, true)
}

// LoginHistory はページングされたログイン履歴を返す。ベアラー資格情報が
// 必要。pageは1始まり、limitは1ページあたりの件数。
func (c *Client) LoginHistory(ctx context.Context, page, limit int) (*model.LoginHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var history model.LoginHistoryPage
	path := fmt.Sprintf("/login/history?page=%d&limit=%d", page, limit)
	if err := c.do(ctx, "login_history", "GET", path, nil, &history, true); err != nil {
		return nil, err
	}
	return &history, nil
}
