package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TushareClient is a thin wrapper over Tushare Pro's single JSON-RPC
// style endpoint (one URL, api_name selects the dataset).
type TushareClient struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

type TushareRequest struct {
	APIName string      `json:"api_name"`
	Token   string      `json:"token"`
	Params  interface{} `json:"params,omitempty"`
	Fields  string      `json:"fields,omitempty"`
}

type TushareResponse struct {
	RequestID string `json:"request_id"`
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Data      struct {
		Fields []string        `json:"fields"`
		Items  [][]interface{} `json:"items"`
	} `json:"data"`
}

func NewTushareClient(apiKey, baseURL string) *TushareClient {
	return &TushareClient{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *TushareClient) Execute(ctx context.Context, apiName string, params interface{}, fields string) (*TushareResponse, error) {
	req := TushareRequest{
		APIName: apiName,
		Token:   c.APIKey,
		Params:  params,
		Fields:  fields,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("tushare: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("tushare: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tushare: request %s: %w", apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tushare: %s returned status %d", apiName, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tushare: read response: %w", err)
	}

	var tushareResp TushareResponse
	if err := json.Unmarshal(body, &tushareResp); err != nil {
		return nil, fmt.Errorf("tushare: decode response: %w", err)
	}
	if tushareResp.Code != 0 {
		return nil, fmt.Errorf("tushare: %s: %s", apiName, tushareResp.Msg)
	}
	return &tushareResp, nil
}

func (c *TushareClient) GetStockBasic(ctx context.Context, params map[string]interface{}) (*TushareResponse, error) {
	return c.Execute(ctx, "stock_basic", params, "ts_code,symbol,name,area,industry,list_date")
}

func (c *TushareClient) GetDailyQuotes(ctx context.Context, params map[string]interface{}) (*TushareResponse, error) {
	return c.Execute(ctx, "daily", params, "ts_code,trade_date,open,high,low,close,pre_close,change,pct_chg,vol,amount")
}

// GetRealtimeQuotes uses Tushare's "quotes" endpoint. Tushare Pro's
// free tier has no true realtime feed; this is the closest published
// dataset and callers should expect end-of-day-delayed data.
func (c *TushareClient) GetRealtimeQuotes(ctx context.Context, params map[string]interface{}) (*TushareResponse, error) {
	return c.Execute(ctx, "quotes", params, "ts_code,trade_time,open,high,low,close,pre_close,change,pct_chg,vol,amount")
}
