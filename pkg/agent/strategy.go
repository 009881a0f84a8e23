package agent

import "context"

// strategyCollection is the default knowledge collection for strategy work.
const strategyCollection = "strategy_knowledge"

// Strategy task types. All but strategyConsult are advertised capabilities.
const (
	taskPositioning = "market_positioning"
	taskGrowth      = "growth_planning"
	taskCompetitive = "competitive_analysis"
	taskPricing     = "pricing_strategy"
	taskTeam        = "team_development"
	strategyConsult = "strategy_consult"
)

var strategyPrompts = map[string]string{
	taskPositioning: "你是企业战略顾问，请给出市场定位建议：目标客群、价值主张与进入路径。",
	taskGrowth:      "你是企业战略顾问，请制定分阶段增长规划，每个阶段给出目标、关键动作与衡量指标。",
	taskCompetitive: "你是企业战略顾问，请分析竞争格局并给出差异化建议。",
	taskPricing:     "你是企业战略顾问，请给出定价结构与折扣策略建议，说明适用前提。",
	taskTeam:        "你是企业战略顾问，请给出销售团队搭建与培养建议：岗位、节奏与考核。",
	strategyConsult: "你是企业战略顾问，请基于事实给出可执行的战略建议。",
}

// StrategyAgent advises on management strategy: positioning, growth,
// competition, pricing, and team building.
type StrategyAgent struct {
	*BaseAgent
	classifier *Classifier
}

// NewStrategyAgent builds the strategy agent on the given services.
func NewStrategyAgent(svc Services) *StrategyAgent {
	caps := []Capability{
		{Name: taskPositioning, Description: "市场定位与目标客群选择"},
		{Name: taskGrowth, Description: "分阶段增长路径规划"},
		{Name: taskCompetitive, Description: "竞争格局与差异化分析"},
		{Name: taskPricing, Description: "定价与折扣策略设计"},
		{Name: taskTeam, Description: "销售团队搭建与人才培养"},
	}
	return &StrategyAgent{
		BaseAgent: NewBaseAgent("strategy", "战略顾问", "经营战略与增长规划", caps, svc),
		classifier: NewClassifier(strategyConsult,
			Rule{TaskType: taskPricing, Keywords: []string{"定价", "价格", "折扣", "报价"}},
			Rule{TaskType: taskCompetitive, Keywords: []string{"竞争", "对手", "竞品"}},
			Rule{TaskType: taskTeam, Keywords: []string{"团队", "招聘", "培训", "人才"}},
			Rule{TaskType: taskPositioning, Keywords: []string{"定位", "目标市场", "细分"}},
			Rule{TaskType: taskGrowth, Keywords: []string{"增长", "扩张", "规划"}},
		),
	}
}

// Analyze classifies the request. Competitive analysis fans out to the
// market agent in parallel for fresh intelligence.
func (a *StrategyAgent) Analyze(ctx context.Context, msg Message) Analysis {
	analysis := Analysis{
		TaskType: a.classifier.Classify(msg.Content),
		Entities: ExtractEntities(msg.Content),
	}
	if analysis.TaskType == taskCompetitive {
		analysis.NeedsCollaboration = true
		analysis.RequiredAgents = []string{"market"}
		analysis.CollaborationType = CollabParallel
	}
	return analysis
}

// Execute composes knowledge evidence with a task-tuned model pass.
func (a *StrategyAgent) Execute(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	system := strategyPrompts[analysis.TaskType]
	if system == "" {
		system = strategyPrompts[strategyConsult]
	}
	return a.composeTask(ctx, analysis, msg.Content, system, a.collection(strategyCollection))
}

// Respond formats the outcome with strategy follow-ups.
func (a *StrategyAgent) Respond(ctx context.Context, result TaskResult, collab *CollaborationResult) Response {
	suggestions, next := strategyFollowups(result.ResponseType)
	return a.buildResponse(result, collab,
		"战略分析没有完成，请补充行业与经营现状后重试。", suggestions, next)
}

func strategyFollowups(taskType string) (suggestions, next []string) {
	switch taskType {
	case taskPricing:
		return []string{"调价前先在小范围客群验证"},
			[]string{"测算毛利影响", "同步销售团队新的报价口径"}
	case taskCompetitive:
		return []string{"差异化主张需要销售话术承接"},
			[]string{"更新竞品对比材料", "让市场分析师持续跟踪对手"}
	case taskGrowth:
		return []string{"每个增长阶段设一个可量化的北极星指标"},
			[]string{"拆解季度目标", "评估团队承接能力"}
	default:
		return []string{"补充收入结构与客群数据可以提升建议质量"},
			[]string{"明确目标客群", "制定季度行动计划"}
	}
}
