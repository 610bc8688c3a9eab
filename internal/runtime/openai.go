package runtime

import (
	"context"
	"fmt"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个基于 OpenAI Chat Completion API 的 Agent 运行时。
type OpenAI struct {
	client *openai.Client // OpenAI 客户端实例。
	model  string         // 要使用的模型名称。
}

// NewOpenAI 创建一个新的 OpenAI 运行时。
func NewOpenAI(model string, apiKey string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai runtime requires an api key")
	}
	config := openai.DefaultConfig(apiKey)
	client := openai.NewClientWithConfig(config)
	return &OpenAI{
		client: client,
		model:  model,
	}, nil
}

// Name 返回运行时标识。
func (o *OpenAI) Name() string {
	return "openai/" + o.model
}

// Invoke 使用 OpenAI API 执行一次 Agent 调用。
func (o *OpenAI) Invoke(ctx context.Context, inv *Invocation) (*Result, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.toChatRequest(inv))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Result{
		Output:     resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// toChatRequest 将调用转换为 OpenAI 的消息格式。
// Agent 身份进入 system 消息，上下文和任务进入 user 消息。
func (o *OpenAI) toChatRequest(inv *Invocation) openai.ChatCompletionRequest {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf("You are the %q agent.", inv.AgentName),
		},
	}

	user := inv.Task
	if inv.Context != "" {
		user = "## Reference material\n\n" + inv.Context + "\n\n## Task\n\n" + inv.Task
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	return openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
}
