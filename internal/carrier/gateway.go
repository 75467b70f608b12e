package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stockkeeper/internal/logger"
)

var (
	ErrProviderNotConfigured = errors.New("carrier provider not configured")
	ErrRequestFailed         = errors.New("carrier request failed")
	ErrResponseInvalid       = errors.New("carrier response invalid")
)

// ProviderConfig 单个承运商接入配置
type ProviderConfig struct {
	Endpoint string // 接口地址
	APIKey   string // 接口密钥
}

// ShipmentRequest 承运商下单请求
type ShipmentRequest struct {
	OrderNo   string         `json:"order_no"`
	Reference string         `json:"reference"` // 本系统运单号
	Items     []ShipmentLine `json:"items"`
}

// ShipmentLine 下单明细
type ShipmentLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// ShipmentResult 承运商下单结果
type ShipmentResult struct {
	TrackingNumber string                 // 承运商运单号
	LabelURL       string                 // 面单地址
	Raw            map[string]interface{} // 原始响应
}

// TrackResult 运单轨迹查询结果
type TrackResult struct {
	Status string                 // 承运商侧状态
	Raw    map[string]interface{} // 原始响应
}

// Gateway 承运商 HTTP 网关，调用经熔断器保护
type Gateway struct {
	providers map[string]ProviderConfig
	breaker   *Breaker
	client    *http.Client
}

// NewGateway 创建承运商网关
func NewGateway(providers map[string]ProviderConfig, breaker *Breaker, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	normalized := make(map[string]ProviderConfig, len(providers))
	for name, cfg := range providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
		cfg.APIKey = strings.TrimSpace(cfg.APIKey)
		normalized[key] = cfg
	}
	if breaker == nil {
		breaker = NewBreaker(BreakerOptions{}, nil)
	}
	return &Gateway{
		providers: normalized,
		breaker:   breaker,
		client:    &http.Client{Timeout: timeout},
	}
}

// Breaker 暴露熔断器（管理端状态查询）
func (g *Gateway) Breaker() *Breaker {
	return g.breaker
}

// Providers 已配置的承运商列表
func (g *Gateway) Providers() []string {
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	return names
}

func (g *Gateway) provider(name string) (ProviderConfig, string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return ProviderConfig{}, "", ErrProviderInvalid
	}
	cfg, ok := g.providers[key]
	if !ok || cfg.Endpoint == "" {
		return ProviderConfig{}, "", ErrProviderNotConfigured
	}
	return cfg, key, nil
}

// CreateShipment 调用承运商下单，返回运单号与面单地址
func (g *Gateway) CreateShipment(ctx context.Context, provider string, req ShipmentRequest) (*ShipmentResult, error) {
	cfg, key, err := g.provider(provider)
	if err != nil {
		return nil, err
	}
	if req.OrderNo == "" || len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: empty shipment request", ErrRequestFailed)
	}
	if err := g.breaker.Allow(ctx, key); err != nil {
		return nil, err
	}

	respBytes, err := g.postJSON(ctx, cfg, cfg.Endpoint+"/v1/shipments", req)
	if err != nil {
		g.recordFailure(ctx, key, err)
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp struct {
		TrackingNumber string `json:"tracking_number"`
		LabelURL       string `json:"label_url"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		g.recordFailure(ctx, key, err)
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if strings.TrimSpace(resp.TrackingNumber) == "" {
		g.recordFailure(ctx, key, errors.New("missing tracking_number"))
		return nil, fmt.Errorf("%w: missing tracking_number", ErrResponseInvalid)
	}
	if err := g.breaker.Success(ctx, key); err != nil {
		logger.Warnw("carrier_breaker_record_failed", "provider", key, "error", err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	return &ShipmentResult{
		TrackingNumber: resp.TrackingNumber,
		LabelURL:       resp.LabelURL,
		Raw:            raw,
	}, nil
}

// Track 查询承运商侧运单状态
func (g *Gateway) Track(ctx context.Context, provider, trackingNumber string) (*TrackResult, error) {
	cfg, key, err := g.provider(provider)
	if err != nil {
		return nil, err
	}
	number := strings.TrimSpace(trackingNumber)
	if number == "" {
		return nil, fmt.Errorf("%w: empty tracking number", ErrRequestFailed)
	}
	if err := g.breaker.Allow(ctx, key); err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint + "/v1/tracking/" + url.PathEscape(number)
	respBytes, err := g.getJSON(ctx, cfg, endpoint)
	if err != nil {
		g.recordFailure(ctx, key, err)
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		g.recordFailure(ctx, key, err)
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if err := g.breaker.Success(ctx, key); err != nil {
		logger.Warnw("carrier_breaker_record_failed", "provider", key, "error", err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	return &TrackResult{Status: strings.ToLower(strings.TrimSpace(resp.Status)), Raw: raw}, nil
}

func (g *Gateway) recordFailure(ctx context.Context, provider string, cause error) {
	logger.Warnw("carrier_call_failed", "provider", provider, "error", cause)
	if err := g.breaker.Failure(ctx, provider); err != nil {
		logger.Warnw("carrier_breaker_record_failed", "provider", provider, "error", err)
	}
}

func (g *Gateway) postJSON(ctx context.Context, cfg ProviderConfig, endpoint string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return g.do(req)
}

func (g *Gateway) getJSON(ctx context.Context, cfg ProviderConfig, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	return g.do(req)
}

func (g *Gateway) do(req *http.Request) ([]byte, error) {
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
