package models

import (
	"time"
)

// Task 描述一次要交给 Agent 运行时执行的工作单元。
// Task 在提交后不可变，执行产生的所有状态都记录在 ExecutionResult 中。
type Task struct {
	// --- 路由和命名 ---
	AgentName   string `json:"agentName"`   // 目标 Agent 的名称，不能为空
	Description string `json:"description"` // 要执行的工作内容描述

	// --- 输入与输出 ---
	ContextPaths []string `json:"contextPaths,omitempty"` // 作为上下文注入的文件路径列表，逐个经过安全检查和缓存
	OutputPath   string   `json:"outputPath,omitempty"`   // 执行成功后输出写入的目标路径；为空则不落盘

	// --- 控制参数 ---
	Timeout   time.Duration          `json:"timeout,omitempty"`   // 单次执行的超时时间；为 0 时使用配置默认值
	Variables map[string]interface{} `json:"variables,omitempty"` // 渲染后剩余的变量，原样传递给运行时
}
