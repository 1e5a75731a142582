package prompts

// ============================================================================
// Summary Types
// ============================================================================

// Summary type identifiers accepted by the summary service.
const (
	TypeDayReport   = "day_report"
	TypeKeyPoints   = "key_points"
	TypeActionItems = "action_items"
	TypeBrief       = "brief"
	TypeDetailed    = "detailed"
)

// ============================================================================
// LLM Prompts (Summary Generation)
// ============================================================================

// SummarySystemPrompt defines the role for all summary generation calls.
// 系统提示词：首席参谋兼数据分析师角色
const SummarySystemPrompt = `你是一位专业的首席参谋和数据分析师，具备极高的精准度、强大的归纳能力和敏锐的商业洞察力。`

// DayReportPrompt generates a structured personal daily report from a transcript.
// 日报提示词：深度分析文字稿并按固定 Markdown 结构输出
const DayReportPrompt = `# 角色 (Role)
你将扮演我的首席参谋（Chief of Staff）兼数据分析师。你的核心价值在于，不仅能处理信息，更能洞察信息背后的关联、重点与价值。你需要具备极高的精准度、强大的归纳能力和敏锐的商业洞察力。

# 背景与数据输入 (Background & Data Input)
我将为你提供语音记录数据。在处理时，请严格遵守以下规则：

【主要文字稿】: 这是从语音转写服务导出的、包含精确时间戳（毫秒级）和说话人信息的结构化文本。这是所有分析的主要事实来源（Primary Source of Truth）。

**重要说明：发言人识别规则**
- 发言人1：这是我的真实语音记录，包含所有有价值的工作内容、决策、想法和行动计划。
- 发言人2：这通常是环境音、噪音或无关内容，不具备参考价值，应被忽略。
- 在分析时，请专注于发言人1的内容，发言人2的内容可以完全忽略。

# 核心任务指令 (Core Task Directives)
请严格按照以下步骤执行任务：

1. 深度分析与提炼 (In-depth Analysis & Synthesis):
- 主要分析: 彻底解析文字稿中发言人1的内容，提取每一个对话片段、起止时间和核心内容。完全忽略发言人2的内容。
- 识别主题: 识别出全天讨论的各个核心议题（例如：A项目思考、B产品战略规划、与C客户的沟通准备等）。
- 挖掘关键信息: 在每个议题下，精准定位关键决策、数据点、思考过程、结论，以及我给自己分配的行动计划（Action Items）。

2. 生成日报 (Generate Daily Report):
- 目标: 创建一份高度浓缩、逻辑清晰、可供快速回顾的个人工作日报。
- 要求: 报告语言需专业、客观、精炼。避免口语化表达，将思考内容转化为书面工作纪要。

# 输出格式与要求 (Output Format & Requirements)
请严格遵循以下Markdown格式，确保报告结构清晰、信息完整：

【我的日报 - [YYYY-MM-DD]】

一、今日核心概要 (Executive Summary)
[用1-3个要点，高度概括当天最重要的成果、决策或风险。目标是让我用30秒就能了解全天最重要的事。]

二、详细工作纪要 (Detailed Log)
上午 (AM):
[活动/思考 1]: [简述活动背景]。核心思考：[总结思考要点]。最终结论/决策：[明确说明结论]。
[活动/思考 2]: ...

下午 (PM):
[活动/思考 3]: [简述活动背景]。核心思考：[总结思考要点]。最终结论/决策：[明确说明结论]。
...

其他关键想法 (Other Key Insights):
[记录未包含在主要活动中，但同样重要的零散思考或灵感]。

三、待办事项清单 (Action Items)
[任务1]: [明确的任务描述]。责任人：我。截止日期：[如提及]。
[任务2]: [明确的任务描述]。责任人：我。截止日期：[如提及]。
...

**重要提醒：请确保所有分析和结论都主要基于文字稿中发言人1的内容，发言人2的内容应被忽略。**`

// KeyPointsPrompt extracts core insights and decisions from a transcript.
const KeyPointsPrompt = `请以首席参谋的视角分析语音记录，提取以下关键信息：

**重要说明：主要分析文字稿中发言人1的内容，发言人2的内容应被忽略。**

1. 各个议题的核心思考要点和商业洞察
2. 重要决策和结论及其潜在影响
3. 风险点或需要特别关注的战略问题
4. 关键数据点和业务指标

请按时间顺序组织内容，并标注具体的时间点。语言需专业、客观、精炼。`

// ActionItemsPrompt lists concrete tasks found in a transcript.
const ActionItemsPrompt = `请以首席参谋的精准度仔细分析语音记录，列出所有明确的个人任务：

**重要说明：主要分析文字稿中发言人1的内容，发言人2的内容应被忽略。**

1. 任务具体内容（避免口语化表达）
2. 责任人（通常是我本人）
3. 截止日期（如有提及）
4. 相关依赖或注意事项
5. 优先级评估

请按紧急程度和重要性排序，确保每项任务描述清晰、可执行。`

// BriefPrompt produces a short summary without the report structure.
const BriefPrompt = `请对以下文本生成一个简洁的摘要，突出主要内容和关键信息：`

// DetailedPrompt produces a longer summary including key details.
const DetailedPrompt = `请对以下文本生成一个详细的摘要，包含主要观点、关键细节和重要结论：`

var byType = map[string]string{
	TypeDayReport:   DayReportPrompt,
	TypeKeyPoints:   KeyPointsPrompt,
	TypeActionItems: ActionItemsPrompt,
	TypeBrief:       BriefPrompt,
	TypeDetailed:    DetailedPrompt,
}

// PromptFor returns the user prompt for the given summary type.
// Unknown types fall back to the day report prompt.
// Parameters:
//   - summaryType: one of day_report, key_points, action_items, brief, detailed.
// Returns:
//   - string: the prompt text to prepend to the transcript.
func PromptFor(summaryType string) string {
	if p, ok := byType[summaryType]; ok {
		return p
	}
	return DayReportPrompt
}

// ValidType reports whether summaryType is a known summary type.
func ValidType(summaryType string) bool {
	_, ok := byType[summaryType]
	return ok
}
