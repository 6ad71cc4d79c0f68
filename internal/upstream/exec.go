// Package upstream — клиенты внешних сервисов: исполнитель кода и
// обменник OAuth-кодов. Оба — тонкие JSON-прокси, их ошибки мапятся
// в domain.ErrUpstream.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Abhi773925/compiler-design-sub002/internal/domain"
)

type ExecRequest struct {
	Language   string `json:"language"`
	SourceCode string `json:"sourceCode"`
	Stdin      string `json:"stdin,omitempty"`
}

type ExecResult struct {
	Stdout       string `json:"stdout"`
	Stderr       string `json:"stderr"`
	CompileError string `json:"compileError,omitempty"`
	ExitCode     int    `json:"exitCode"`
	TimeMS       int64  `json:"timeMs,omitempty"`
}

type ExecClient struct {
	baseURL string
	http    *http.Client
}

func NewExecClient(baseURL string, timeout time.Duration) *ExecClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Run отправляет код на исполнение и ждёт результат. Любой сбой транспорта
// или не-2xx ответ — ErrUpstream.
func (c *ExecClient) Run(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: exec request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: exec service responded %d: %s",
			domain.ErrUpstream, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out ExecResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode exec response: %v", domain.ErrUpstream, err)
	}
	return &out, nil
}
