// Package weather 提供了一个与 OpenWeatherMap 当前天气接口交互的客户端。
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Conditions 是一次天气查询的结果。
type Conditions struct {
	City        string
	Main        string
	Description string
	TempC       float64
	FeelsLikeC  float64
	Humidity    int
	WindKmh     float64
	CloudPct    int
}

// Client 是 OpenWeatherMap 的客户端。
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient 创建一个新的天气客户端实例。
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 8 * time.Second},
	}
}

type currentResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
}

// Current 查询城市的当前天气，city 形如 "Artvin,TR"。
func (c *Client) Current(ctx context.Context, city string) (Conditions, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	q.Set("lang", "tr")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Conditions{}, fmt.Errorf("创建请求失败: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Conditions{}, fmt.Errorf("调用天气接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Conditions{}, fmt.Errorf("天气接口返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	var data currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Conditions{}, fmt.Errorf("解析天气响应失败: %w", err)
	}
	if len(data.Weather) == 0 {
		return Conditions{}, fmt.Errorf("天气响应缺少 weather 字段")
	}
	return Conditions{
		City:        data.Name,
		Main:        data.Weather[0].Main,
		Description: data.Weather[0].Description,
		TempC:       data.Main.Temp,
		FeelsLikeC:  data.Main.FeelsLike,
		Humidity:    data.Main.Humidity,
		WindKmh:     data.Wind.Speed * 3.6,
		CloudPct:    data.Clouds.All,
	}, nil
}
