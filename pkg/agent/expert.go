package agent

import "context"

// expertCollection is the default knowledge collection for CRM practices.
const expertCollection = "crm_best_practices"

// Expert task types. All but expertConsult are advertised capabilities.
const (
	taskProcessReview = "crm_process_review"
	taskPipeline      = "pipeline_hygiene"
	taskCadence       = "follow_up_cadence"
	taskDataAudit     = "data_quality_audit"
	taskPlaybook      = "playbook_advice"
	expertConsult     = "expert_consult"
)

var expertPrompts = map[string]string{
	taskProcessReview: "你是CRM最佳实践专家，请评审销售流程：指出断点并给出改进顺序。",
	taskPipeline:      "你是CRM最佳实践专家，请给出商机管道治理建议：阶段定义、停留时长与清理规则。",
	taskCadence:       "你是CRM最佳实践专家，请设计客户跟进节奏：频率、渠道与升级规则。",
	taskDataAudit:     "你是CRM最佳实践专家，请审查客户数据质量：缺失、重复与过期字段的处理方案。",
	taskPlaybook:      "你是CRM最佳实践专家，请给出可直接执行的销售剧本建议。",
	expertConsult:     "你是CRM最佳实践专家，请结合行业通行做法回答。",
}

// ExpertAgent answers CRM process and best-practice questions.
type ExpertAgent struct {
	*BaseAgent
	classifier *Classifier
}

// NewExpertAgent builds the CRM expert agent on the given services.
func NewExpertAgent(svc Services) *ExpertAgent {
	caps := []Capability{
		{Name: taskProcessReview, Description: "销售流程评审与改进建议"},
		{Name: taskPipeline, Description: "商机管道健康度治理"},
		{Name: taskCadence, Description: "客户跟进节奏设计"},
		{Name: taskDataAudit, Description: "客户数据质量审查"},
		{Name: taskPlaybook, Description: "销售剧本与话术沉淀"},
	}
	return &ExpertAgent{
		BaseAgent: NewBaseAgent("expert", "CRM专家", "CRM流程与最佳实践", caps, svc),
		classifier: NewClassifier(expertConsult,
			Rule{TaskType: taskDataAudit, Keywords: []string{"数据质量", "数据审查", "重复数据", "脏数据"}},
			Rule{TaskType: taskPipeline, Keywords: []string{"管道", "商机", "漏斗"}},
			Rule{TaskType: taskCadence, Keywords: []string{"跟进节奏", "跟进频率", "多久跟进"}},
			Rule{TaskType: taskProcessReview, Keywords: []string{"流程", "评审", "规范"}},
			Rule{TaskType: taskPlaybook, Keywords: []string{"剧本", "话术", "最佳实践"}},
		),
	}
}

// Analyze classifies the request. Expert reviews run standalone.
func (a *ExpertAgent) Analyze(ctx context.Context, msg Message) Analysis {
	return Analysis{
		TaskType: a.classifier.Classify(msg.Content),
		Entities: ExtractEntities(msg.Content),
	}
}

// Execute composes knowledge evidence with a task-tuned model pass. A data
// audit that names a customer id folds the customer record into the prompt.
func (a *ExpertAgent) Execute(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	question := msg.Content
	if analysis.TaskType == taskDataAudit {
		if detail := a.lookupCustomer(ctx, analysis.Entities["customer_id"]); detail != "" {
			question = msg.Content + "\n\n客户档案：\n" + detail
		}
	}
	system := expertPrompts[analysis.TaskType]
	if system == "" {
		system = expertPrompts[expertConsult]
	}
	return a.composeTask(ctx, analysis, question, system, a.collection(expertCollection))
}

// Respond formats the outcome with practice follow-ups.
func (a *ExpertAgent) Respond(ctx context.Context, result TaskResult, collab *CollaborationResult) Response {
	suggestions, next := expertFollowups(result.ResponseType)
	return a.buildResponse(result, collab,
		"评审没有完成，请补充现有流程的描述后重试。", suggestions, next)
}

func expertFollowups(taskType string) (suggestions, next []string) {
	switch taskType {
	case taskDataAudit:
		return []string{"先治理高频使用的字段，再处理长尾"},
			[]string{"导出问题数据清单", "设定录入校验规则"}
	case taskPipeline:
		return []string{"超过60天未动的商机要么推进要么关闭"},
			[]string{"按阶段盘点存量商机", "设定停留时长告警"}
	case taskCadence:
		return []string{"跟进节奏要和客户决策周期匹配"},
			[]string{"在CRM中配置跟进提醒", "为高分客户加密跟进频率"}
	default:
		return []string{"描述现状越具体，改进建议越可落地"},
			[]string{"选一个流程断点先行试点"}
	}
}
