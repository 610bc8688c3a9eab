package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个基于 Google Gemini API 的 Agent 运行时。
type Gemini struct {
	client *genai.Client          // GenAI 客户端，负责连接生命周期。
	model  *genai.GenerativeModel // Gemini 生成模型实例。
	name   string
}

// NewGemini 创建一个新的 Gemini 运行时。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的生命周期。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//
// 返回值:
//
//	*Gemini: 新创建的 Gemini 运行时实例。
//	error: 如果无法创建 GenAI 客户端，则返回错误。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini runtime requires an api key")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(model),
		name:   model,
	}, nil
}

// Name 返回运行时标识。
func (g *Gemini) Name() string {
	return "gemini/" + g.name
}

// Invoke 使用 Gemini API 执行一次 Agent 调用。
func (g *Gemini) Invoke(ctx context.Context, inv *Invocation) (*Result, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(inv)))
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	// 拼接所有文本部分作为输出。
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	result := &Result{Output: sb.String()}
	if resp.UsageMetadata != nil {
		result.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

// Close 释放底层 GenAI 客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}
