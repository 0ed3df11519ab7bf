package facts

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/weather"

	"gopkg.in/yaml.v3"
)

// Collector 产出一组片段。单个采集器失败不影响其他采集器。
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]model.FactSnippet, error)
}

// FileCollector 读取外部爬虫写出的片段文件。
type FileCollector struct {
	path       string
	defaultTTL time.Duration
}

// NewFileCollector 创建文件采集器。片段未声明 ttl 时使用 defaultTTL。
func NewFileCollector(path string, defaultTTL time.Duration) *FileCollector {
	return &FileCollector{path: path, defaultTTL: defaultTTL}
}

func (c *FileCollector) Name() string { return "file" }

type snippetFile struct {
	Snippets []model.FactSnippet `yaml:"snippets"`
}

func (c *FileCollector) Collect(_ context.Context) ([]model.FactSnippet, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("stat facts file: %w", err)
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read facts file: %w", err)
	}
	var f snippetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse facts file: %w", err)
	}

	out := make([]model.FactSnippet, 0, len(f.Snippets))
	for _, s := range f.Snippets {
		s.Topic = strings.TrimSpace(s.Topic)
		if s.Topic == "" || strings.TrimSpace(s.Payload) == "" {
			continue
		}
		if s.FetchedAt.IsZero() {
			s.FetchedAt = info.ModTime()
		}
		if s.TTL == 0 {
			s.TTL = c.defaultTTL
		}
		out = append(out, s)
	}
	return out, nil
}

// WeatherFetcher 抽象天气客户端，便于测试。
type WeatherFetcher interface {
	Current(ctx context.Context, city string) (weather.Conditions, error)
}

// WeatherCollector 把当前天气格式化为 "weather" 片段。
type WeatherCollector struct {
	fetcher WeatherFetcher
	city    string
	ttl     time.Duration
	now     func() time.Time
}

// NewWeatherCollector 创建天气采集器。
func NewWeatherCollector(fetcher WeatherFetcher, city string, ttl time.Duration) *WeatherCollector {
	return &WeatherCollector{fetcher: fetcher, city: city, ttl: ttl, now: time.Now}
}

func (c *WeatherCollector) Name() string { return "weather" }

var weatherIcons = map[string]string{
	"Clear": "☀️", "Clouds": "☁️", "Rain": "🌧️", "Drizzle": "🌦️",
	"Thunderstorm": "⛈️", "Snow": "❄️", "Mist": "🌫️", "Fog": "🌫️",
}

func (c *WeatherCollector) Collect(ctx context.Context) ([]model.FactSnippet, error) {
	w, err := c.fetcher.Current(ctx, c.city)
	if err != nil {
		return nil, err
	}
	icon, ok := weatherIcons[w.Main]
	if !ok {
		icon = "🌡️"
	}
	city := w.City
	if city == "" {
		city = strings.Split(c.city, ",")[0]
	}
	payload := fmt.Sprintf("%s %s: %d°C (hissedilen %d°C), %s, nem %%%d, rüzgar %d km/s, bulutluluk %%%d",
		icon, city,
		int(math.Round(w.TempC)), int(math.Round(w.FeelsLikeC)),
		w.Description, w.Humidity, int(math.Round(w.WindKmh)), w.CloudPct)

	return []model.FactSnippet{{
		Topic:     "weather",
		Payload:   payload,
		FetchedAt: c.now(),
		TTL:       c.ttl,
	}}, nil
}
