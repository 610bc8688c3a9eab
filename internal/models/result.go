package models

import (
	"time"
)

// ErrorKind 对执行失败进行分类，便于调用方针对性处理。
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation_error"   // 输入不合法，执行未开始
	ErrorKindSecurity   ErrorKind = "security_violation" // 安全检查拒绝，未接触文件内容
	ErrorKindTimeout    ErrorKind = "timeout"            // 超出时间预算被取消
	ErrorKindRuntime    ErrorKind = "runtime_error"      // Agent 运行时返回错误或不可用
	ErrorKindIO         ErrorKind = "io_error"           // 上下文读取或输出写入失败
)

// ExecutionMetrics 记录单次执行的资源消耗。
type ExecutionMetrics struct {
	Duration     time.Duration `json:"duration"`     // 从开始处理到产生结果的耗时
	TokensUsed   int           `json:"tokensUsed"`   // 运行时报告的 token 消耗
	ContextBytes int           `json:"contextBytes"` // 注入上下文的总字节数
}

// ExecutionResult 是一次任务执行的最终记录。
// 每次执行恰好产生一条结果，创建后不再修改。
type ExecutionResult struct {
	ID        string           `json:"id"`                  // 本次执行的唯一标识 (UUID)
	AgentName string           `json:"agentName"`           // 执行任务的 Agent 名称
	Success   bool             `json:"success"`             // 执行是否成功
	Output    string           `json:"output,omitempty"`    // 成功时的输出内容
	Error     string           `json:"error,omitempty"`     // 失败时的错误信息
	ErrorKind ErrorKind        `json:"errorKind,omitempty"` // 失败分类；成功时为空
	Metrics   ExecutionMetrics `json:"metrics"`             // 资源消耗
	Timestamp time.Time        `json:"timestamp"`           // 结果生成时间
}

// SizeBytes 估算结果占用的内存字节数，用于执行历史的容量控制。
// 只统计会随任务增长的字符串字段，固定开销取一个保守常量。
func (r *ExecutionResult) SizeBytes() int {
	const fixedOverhead = 160
	return fixedOverhead + len(r.ID) + len(r.AgentName) + len(r.Output) + len(r.Error) + len(r.ErrorKind)
}

// BatchResult 汇总一批任务的执行结果，Results 与提交顺序一致。
type BatchResult struct {
	Total      int                `json:"total"`      // 提交的任务总数
	Successful int                `json:"successful"` // 成功数量
	Failed     int                `json:"failed"`     // 失败数量
	Results    []*ExecutionResult `json:"results"`    // 按提交顺序排列的结果
	Duration   time.Duration      `json:"duration"`   // 整批执行的耗时
	Summary    string             `json:"summary"`    // 人类可读的汇总信息
}
