package models

import (
	"time"
)

// VariableType 枚举配方变量支持的类型。
type VariableType string

const (
	VariableTypeString  VariableType = "string"
	VariableTypeNumber  VariableType = "number"
	VariableTypeBoolean VariableType = "boolean"
	VariableTypeArray   VariableType = "array"
)

// VariableDef 定义配方变量的类型、默认值和是否必填。
type VariableDef struct {
	Type     VariableType `json:"type" yaml:"type"`                           // 变量类型 ("string", "number", "boolean", "array")
	Default  interface{}  `json:"default,omitempty" yaml:"default,omitempty"` // 默认值；调用方未提供该变量时使用
	Required bool         `json:"required,omitempty" yaml:"required"`         // 是否必填；必填且无默认值时调用方必须提供
}

// Step 是配方中的一个节点，执行时被物化为一个 Task。
type Step struct {
	// --- 标识与路由 ---
	ID        string `json:"id,omitempty" yaml:"id,omitempty"` // 显式步骤标识；为空时回退到 AgentName
	AgentName string `json:"agentName" yaml:"agentName"`       // 目标 Agent 的名称

	// --- 任务内容 ---
	TaskTemplate      string                 `json:"taskTemplate" yaml:"taskTemplate"`                               // 任务描述模板，支持 {{variable}} 占位符
	ContextRefs       []string               `json:"contextRefs,omitempty" yaml:"contextRefs,omitempty"`             // 上下文文件引用，同样支持占位符
	VariableOverrides map[string]interface{} `json:"variableOverrides,omitempty" yaml:"variableOverrides,omitempty"` // 覆盖配方级变量的步骤级值

	// --- 调度控制 ---
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"` // 依赖的步骤标识列表；这些步骤完成后本步骤才可执行
	Parallel  *bool    `json:"parallel,omitempty" yaml:"parallel,omitempty"`   // 是否允许与同批次其他步骤并行；nil 视为允许
	Timeout   string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`     // 本步骤的超时时间 (例如: "90s")；为空时使用默认值
}

// Identity 返回步骤的稳定标识：显式 ID 优先，否则回退到 AgentName。
// 依赖引用、结果键和输出文件名都使用这个标识。
func (s Step) Identity() string {
	if s.ID != "" {
		return s.ID
	}
	return s.AgentName
}

// Recipe 是一组带依赖关系的步骤定义，由外部的配方文档反序列化而来。
type Recipe struct {
	Name      string                 `json:"name" yaml:"name"`                             // 配方名称
	Version   string                 `json:"version,omitempty" yaml:"version,omitempty"`   // 配方版本
	Variables map[string]VariableDef `json:"variables,omitempty" yaml:"variables,omitempty"` // 配方级变量定义
	Steps     []Step                 `json:"steps" yaml:"steps"`                           // 主体步骤
	Cleanup   []Step                 `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`   // 所有主体批次结束后执行的清理步骤
}

// RecipeResult 汇总一次配方执行的整体结果。
type RecipeResult struct {
	RunID          string                      `json:"runID"`            // 本次配方执行的唯一标识 (UUID)
	RecipeName     string                      `json:"recipeName"`       // 配方名称
	Success        bool                        `json:"success"`          // 所有已执行的主体步骤是否全部成功；清理步骤失败不影响该值
	StepsCompleted int                         `json:"stepsCompleted"`   // 实际完成（含失败）的主体步骤数
	StepsTotal     int                         `json:"stepsTotal"`       // 主体步骤总数
	Results        map[string]*ExecutionResult `json:"results"`          // 步骤标识 -> 执行结果
	Errors         []string                    `json:"errors,omitempty"` // 失败步骤的错误摘要
	Duration       time.Duration               `json:"duration"`         // 整次执行的耗时
	Summary        string                      `json:"summary"`          // 人类可读的汇总信息
}
