package runtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	olla "github.com/ollama/ollama/api"
)

// Ollama 是一个基于本地 Ollama 服务的 Agent 运行时。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
	model  string       // 要使用的模型名称。
}

// NewOllama 创建一个新的 Ollama 运行时。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//
// 返回值:
//
//	*Ollama: 新创建的 Ollama 运行时实例。
//	error: 如果基准 URL 无效，则返回错误。
func NewOllama(model, baseURL string) (*Ollama, error) {
	// 如果 baseURL 为空，则使用默认地址。
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// 创建一个带有超时设置的 HTTP 客户端。
	hc := &http.Client{
		Timeout: 120 * time.Second,
	}

	client := olla.NewClient(parsedURL, hc)

	return &Ollama{client: client, model: model}, nil
}

// Name 返回运行时标识。
func (o *Ollama) Name() string {
	return "ollama/" + o.model
}

// Invoke 使用 Ollama API 执行一次 Agent 调用。
func (o *Ollama) Invoke(ctx context.Context, inv *Invocation) (*Result, error) {
	prompt := buildPrompt(inv)

	var result *olla.GenerateResponse // 用于存储生成结果。

	// 调用 Ollama 客户端的 Generate 方法生成内容，非流式。
	err := o.client.Generate(ctx, &olla.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &[]bool{false}[0],
	}, func(resp olla.GenerateResponse) error {
		result = &resp
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to generate content with ollama: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("ollama returned no response")
	}

	return &Result{
		Output:     result.Response,
		TokensUsed: result.PromptEvalCount + result.EvalCount,
	}, nil
}
