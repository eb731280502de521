package populationpyramid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"pyramids/internal/providers"
)

const (
	defaultBaseURL        = "https://www.populationpyramid.net/"
	defaultPathTemplate   = "api/pp/{code}/{year}/"
	defaultFormatParam    = "csv"
	defaultFormatValue    = "true"
	defaultUserAgent      = "pyramids/0.1"
	defaultTimeoutSeconds = 0
)

type Config struct {
	BaseURL      string
	PathTemplate string
	FormatParam  string
	FormatValue  string
	UserAgent    string
	// Zero means requests never time out.
	Timeout time.Duration
}

type Provider struct {
	config Config
	client *http.Client
}

func New() (*Provider, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("populationpyramid base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("populationpyramid base url: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.PathTemplate) == "" {
		cfg.PathTemplate = defaultPathTemplate
	}
	if cfg.FormatParam == "" {
		cfg.FormatParam = defaultFormatParam
	}
	if cfg.FormatValue == "" {
		cfg.FormatValue = defaultFormatValue
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:      getenv("PP_BASE_URL", defaultBaseURL),
		PathTemplate: getenv("PP_PATH_TEMPLATE", defaultPathTemplate),
		FormatParam:  getenv("PP_FORMAT_PARAM", defaultFormatParam),
		FormatValue:  getenv("PP_FORMAT_VALUE", defaultFormatValue),
		UserAgent:    getenv("PP_USER_AGENT", defaultUserAgent),
	}
	cfg.Timeout = time.Duration(getenvInt("PP_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second
	return cfg, nil
}

func (p *Provider) Name() string {
	return "populationpyramid"
}

// FetchYear issues exactly one GET for the dataset of code in year. A non-200
// response yields a *providers.StatusError; transport failures are returned as is.
func (p *Provider) FetchYear(ctx context.Context, code, year int) ([]byte, error) {
	endpoint, err := p.YearURL(code, year)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv")
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("populationpyramid: request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &providers.StatusError{Provider: p.Name(), StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("populationpyramid: read body: %w", err)
	}
	return body, nil
}

func (p *Provider) YearURL(code, year int) (string, error) {
	path := p.config.PathTemplate
	params := url.Values{}

	codeValue := strconv.Itoa(code)
	yearValue := strconv.Itoa(year)
	if strings.Contains(path, "{code}") {
		path = strings.ReplaceAll(path, "{code}", url.PathEscape(codeValue))
	} else {
		params.Set("code", codeValue)
	}
	if strings.Contains(path, "{year}") {
		path = strings.ReplaceAll(path, "{year}", url.PathEscape(yearValue))
	} else {
		params.Set("year", yearValue)
	}

	return p.buildURL(path, params)
}

func (p *Provider) buildURL(path string, params url.Values) (string, error) {
	base := strings.TrimRight(p.config.BaseURL, "/")
	path = strings.TrimLeft(path, "/")
	endpoint := base + "/" + path

	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	if p.config.FormatParam != "" && p.config.FormatValue != "" {
		query.Set(p.config.FormatParam, p.config.FormatValue)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	if _, err := url.Parse(endpoint); err != nil {
		return "", err
	}
	return endpoint, nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

var _ providers.Provider = (*Provider)(nil)
