package runtime

import (
	"context"
	"fmt"
	"strings"

	"Friday_1.0/internal/config"
)

// Invocation 是一次 Agent 调用的完整输入。
type Invocation struct {
	AgentName string // 执行任务的 Agent 名称
	Task      string // 任务描述
	Context   string // 注入的上下文内容，可以为空
}

// Result 是运行时成功返回的产物。
type Result struct {
	Output     string // Agent 生成的输出
	TokensUsed int    // 本次调用消耗的 token 数，运行时无法统计时为 0
}

// AgentRuntime 定义了所有 Agent 运行时必须实现的通用接口。
// Invoke 的错误只代表运行时本身的失败，调用方负责分类和兜底。
type AgentRuntime interface {
	Invoke(ctx context.Context, inv *Invocation) (*Result, error)
	Name() string
}

// New 是一个工厂函数，根据配置创建并返回一个实现了 AgentRuntime 接口的运行时。
func New(cfg config.RuntimeConfig) (AgentRuntime, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey)
	case "gemini":
		return NewGemini(context.Background(), cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "scripted", "":
		return NewScripted(), nil
	default:
		return nil, fmt.Errorf("unsupported agent runtime provider: %s", cfg.Provider)
	}
}

// buildPrompt 将 Agent 身份、注入上下文和任务描述拼装成一段提示词。
func buildPrompt(inv *Invocation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %q agent. Complete the task below.\n\n", inv.AgentName)
	if inv.Context != "" {
		sb.WriteString("## Reference material\n\n")
		sb.WriteString(inv.Context)
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Task\n\n")
	sb.WriteString(inv.Task)
	return sb.String()
}
