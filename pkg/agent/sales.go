package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// salesCollection is the default knowledge collection for sales work.
const salesCollection = "sales_knowledge"

// Sales task types. All but salesConsult are advertised capabilities.
const (
	taskFindCustomers   = "find_potential_customers"
	taskQualifyCustomer = "qualify_customer"
	taskContactStrategy = "plan_contact_strategy"
	taskFirstVisit      = "plan_first_visit"
	taskExecuteContact  = "execute_contact"
	salesConsult        = "sales_consult"
)

const salesSystemPrompt = "你是资深B2B销售助手，回答要具体、可执行，使用分节与列表组织内容。"

// SalesAgent covers customer discovery, qualification, and first contact.
// The discovery workflow drives it through the typed helpers; conversational
// traffic goes through the Analyze/Execute/Respond lifecycle.
type SalesAgent struct {
	*BaseAgent
	classifier *Classifier
}

// NewSalesAgent builds the sales agent on the given services.
func NewSalesAgent(svc Services) *SalesAgent {
	caps := []Capability{
		{Name: taskFindCustomers, Description: "按行业、区域与规模筛选潜在客户"},
		{Name: taskQualifyCustomer, Description: "评估潜在客户的成交可能性并给出评分"},
		{Name: taskContactStrategy, Description: "制定首次触达的渠道、话术与时机"},
		{Name: taskFirstVisit, Description: "规划首次拜访的目标、议程与准备事项"},
		{Name: taskExecuteContact, Description: "执行首次触达并记录结果"},
	}
	return &SalesAgent{
		BaseAgent: NewBaseAgent("sales", "销售助手", "客户开发与转化", caps, svc),
		classifier: NewClassifier(salesConsult,
			Rule{TaskType: taskFindCustomers, Keywords: []string{"潜在客户", "找客户", "开发客户", "客户名单"}},
			Rule{TaskType: taskExecuteContact, Keywords: []string{"执行联系", "发送", "触达客户"}},
			Rule{TaskType: taskContactStrategy, Keywords: []string{"联系策略", "话术", "怎么联系", "如何联系"}},
			Rule{TaskType: taskFirstVisit, Keywords: []string{"拜访", "见面", "面谈"}},
			Rule{TaskType: taskQualifyCustomer, Keywords: []string{"评估", "资质", "打分", "值得跟进"}},
		),
	}
}

// Analyze classifies the request. Prospecting asks the market agent for a
// sequential assist.
func (a *SalesAgent) Analyze(ctx context.Context, msg Message) Analysis {
	analysis := Analysis{
		TaskType: a.classifier.Classify(msg.Content),
		Entities: ExtractEntities(msg.Content),
	}
	if analysis.TaskType == taskFindCustomers {
		analysis.NeedsCollaboration = true
		analysis.RequiredAgents = []string{"market"}
		analysis.CollaborationType = CollabSequential
	}
	return analysis
}

// Execute performs the classified task.
func (a *SalesAgent) Execute(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	switch analysis.TaskType {
	case taskFindCustomers:
		return a.findCustomers(ctx, msg, analysis)
	case taskQualifyCustomer:
		return a.qualify(ctx, msg, analysis)
	case taskContactStrategy:
		return a.planStrategy(ctx, msg, analysis)
	case taskFirstVisit:
		return a.planVisit(ctx, msg, analysis)
	case taskExecuteContact:
		return a.contact(ctx, msg, analysis)
	default:
		return a.consultTask(ctx, msg, analysis, salesSystemPrompt, a.collection(salesCollection))
	}
}

// Respond formats the outcome with task-specific follow-ups.
func (a *SalesAgent) Respond(ctx context.Context, result TaskResult, collab *CollaborationResult) Response {
	suggestions, next := salesFollowups(result.ResponseType)
	resp := a.buildResponse(result, collab,
		"本次销售任务没有完成，请补充客户信息后重试。", suggestions, next)
	for _, key := range []string{"profile", "strategy", "plan", "record", "criteria", "candidates"} {
		if v, ok := result.Data[key]; ok {
			resp.Metadata[key] = v
		}
	}
	return resp
}

func salesFollowups(taskType string) (suggestions, next []string) {
	switch taskType {
	case taskFindCustomers:
		return []string{"明确行业、区域与规模可以提升线索质量"},
			[]string{"对候选名单逐一评估资质", "发起客户发现工作流"}
	case taskQualifyCustomer:
		return []string{"评分高于0.6的客户建议进入触达计划"},
			[]string{"制定联系策略", "规划首次拜访"}
	case taskContactStrategy:
		return []string{"首次触达聚焦了解现状，避免直接报价"},
			[]string{"执行首次联系", "准备拜访计划"}
	case taskFirstVisit:
		return []string{"拜访前确认参会人及其在决策链中的角色"},
			[]string{"执行拜访", "24小时内发送会议纪要"}
	case taskExecuteContact:
		return []string{"触达后48小时内完成一次跟进"},
			[]string{"更新联系结果", "安排后续跟进"}
	default:
		return []string{"提供更具体的客户背景可以获得更准确的建议"}, nil
	}
}

func (a *SalesAgent) findCustomers(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	criteria := analysis.Entities
	answer := a.consult(ctx, msg.Content, a.collection(salesCollection))
	text := answer.Answer
	if len(answer.Sources) == 0 {
		generated, err := a.complete(ctx, salesSystemPrompt, msg.Content)
		if err != nil {
			return TaskResult{
				ResponseType:     analysis.TaskType,
				FallbackResponse: "暂时无法获取客户线索，请明确目标行业与区域后重试。",
			}, err
		}
		text = generated
	}
	return TaskResult{
		Success:      true,
		ResponseType: analysis.TaskType,
		Data: map[string]any{
			"answer":   text,
			"criteria": criteria,
		},
	}, nil
}

func (a *SalesAgent) qualify(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	lead := leadFromMessage(msg, analysis.Entities)
	profile := a.QualifyCustomer(ctx, lead)
	return TaskResult{
		Success:      true,
		ResponseType: analysis.TaskType,
		Data: map[string]any{
			"answer":  formatProfile(profile),
			"profile": profile,
		},
	}, nil
}

func (a *SalesAgent) planStrategy(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	lead := leadFromMessage(msg, analysis.Entities)
	profile := a.QualifyCustomer(ctx, lead)
	strategy := a.BuildContactStrategy(ctx, profile)
	return TaskResult{
		Success:      true,
		ResponseType: analysis.TaskType,
		Data: map[string]any{
			"answer":   formatStrategy(strategy),
			"strategy": strategy,
		},
	}, nil
}

func (a *SalesAgent) planVisit(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	lead := leadFromMessage(msg, analysis.Entities)
	profile := a.QualifyCustomer(ctx, lead)
	plan := a.BuildVisitPlan(ctx, profile)
	return TaskResult{
		Success:      true,
		ResponseType: analysis.TaskType,
		Data: map[string]any{
			"answer": formatVisitPlan(plan),
			"plan":   plan,
		},
	}, nil
}

func (a *SalesAgent) contact(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	lead := leadFromMessage(msg, analysis.Entities)
	profile := a.QualifyCustomer(ctx, lead)
	if detail := a.lookupCustomer(ctx, analysis.Entities["customer_id"]); detail != "" {
		profile.Highlights = append(profile.Highlights, "已有客户档案："+FirstLine(detail))
	}
	strategy := a.BuildContactStrategy(ctx, profile)
	record, err := a.ExecuteContact(ctx, strategy)
	if err != nil {
		return TaskResult{
			ResponseType:     analysis.TaskType,
			FallbackResponse: "联系未能执行，请确认客户名称与联系方式。",
		}, err
	}
	return TaskResult{
		Success:      true,
		ResponseType: analysis.TaskType,
		Data: map[string]any{
			"answer": formatRecord(record),
			"record": record,
		},
	}, nil
}

// QualifyCustomer scores a lead with a fixed rubric and materializes the
// profile. No model call: the workflow runs this over whole candidate lists
// and the score must be reproducible.
func (a *SalesAgent) QualifyCustomer(ctx context.Context, lead PotentialCustomer) CustomerProfile {
	profile := CustomerProfile{
		Name:     lead.Name,
		Industry: lead.Industry,
		Scale:    lead.Scale,
		Region:   lead.Region,
	}

	score := 0.4
	if lead.Industry != "" {
		score += 0.1
		profile.Highlights = append(profile.Highlights, "行业方向明确："+lead.Industry)
	}
	if lead.Region != "" {
		score += 0.05
		profile.Highlights = append(profile.Highlights, "区域覆盖："+lead.Region)
	}
	switch lead.Scale {
	case "大型":
		score += 0.2
		profile.Highlights = append(profile.Highlights, "大型企业，预算空间充足")
	case "中型":
		score += 0.1
		profile.Highlights = append(profile.Highlights, "中型企业，决策链路较短")
	default:
		profile.Risks = append(profile.Risks, "规模未知或偏小，需确认预算")
	}
	if lead.Industry != "" {
		evidence := a.consult(ctx, lead.Industry+"行业客户的采购特征与决策流程", a.collection(salesCollection))
		if len(evidence.Sources) > 0 {
			score += 0.05
			profile.Highlights = append(profile.Highlights, "知识库中有该行业的成单经验")
		}
	}

	profile.Score = clamp01(score)
	profile.Approach = approachForScale(lead.Scale)
	return profile
}

// BuildContactStrategy derives first-touch messaging from a qualified
// profile. The skeleton is deterministic; a configured model may rewrite
// the opening message.
func (a *SalesAgent) BuildContactStrategy(ctx context.Context, profile CustomerProfile) ContactStrategy {
	industry := profile.Industry
	if industry == "" {
		industry = "同类"
	}
	primary, backup := channelsForScale(profile.Scale)
	strategy := ContactStrategy{
		CustomerName:     profile.Name,
		PrimaryChannel:   primary,
		BackupChannel:    backup,
		Message:          fmt.Sprintf("您好，我们帮助%s企业搭建客户管理体系，想约15分钟了解贵司目前的客户跟进方式。", industry),
		ValueProposition: fmt.Sprintf("面向%s行业的客户管理与销售协同方案", industry),
		CallToAction:     "预约15分钟的线上沟通",
		BestTime:         bestTimeForScale(profile.Scale),
		Personalization:  strings.Join(profile.Highlights, "；"),
	}
	prompt := fmt.Sprintf("为客户「%s」（%s行业，%s规模）写一句不超过60字的首次触达开场白，只输出这一句话。",
		profile.Name, industry, profile.Scale)
	if text, err := a.complete(ctx, salesSystemPrompt, prompt); err == nil {
		if line := FirstLine(text); line != "" {
			strategy.Message = line
		}
	}
	return strategy
}

// BuildVisitPlan structures the first meeting. The checklist skeleton is
// deterministic; a configured model may contribute extra key questions.
func (a *SalesAgent) BuildVisitPlan(ctx context.Context, profile CustomerProfile) VisitPlan {
	industry := profile.Industry
	if industry == "" {
		industry = "相关"
	}
	plan := VisitPlan{
		CustomerName: profile.Name,
		Objectives: []string{
			"确认客户当前的客户管理痛点",
			"识别关键决策人与采购流程",
			"约定下一步动作与时间点",
		},
		Agenda: []string{
			"公司与产品概览（10分钟）",
			"客户现状与痛点访谈（20分钟）",
			"针对性方案演示（15分钟）",
			"下一步计划确认（5分钟）",
		},
		Preparation: []string{
			"调研客户近期业务动态",
			"准备" + industry + "行业的客户案例",
			"确认参会人名单与角色",
		},
		Materials: []string{"产品介绍", "行业案例集", "报价框架"},
		KeyQuestions: []string{
			"目前客户信息沉淀在哪里，团队如何共享？",
			"销售过程中最耗时的环节是什么？",
			"今年在客户增长上的目标是什么？",
		},
		SuccessCriteria: []string{"明确痛点清单", "拿到决策链信息", "约定第二次沟通时间"},
		FollowUps:       []string{"24小时内发送会议纪要", "三个工作日内提供定制方案"},
	}
	if len(profile.Risks) > 0 {
		plan.Preparation = append(plan.Preparation, "针对风险准备预案："+strings.Join(profile.Risks, "；"))
	}
	prompt := fmt.Sprintf("首次拜访%s行业客户「%s」，列出2个最值得问的问题，每行一个。", industry, profile.Name)
	if text, err := a.complete(ctx, salesSystemPrompt, prompt); err == nil {
		for _, q := range ListItems(text) {
			if len(plan.KeyQuestions) >= 5 {
				break
			}
			plan.KeyQuestions = append(plan.KeyQuestions, q)
		}
	}
	return plan
}

// ExecuteContact performs one outreach attempt and returns its record. When
// a send_message tool is registered the send goes through it and a tool
// failure marks the record failed; otherwise the send is recorded as made.
func (a *SalesAgent) ExecuteContact(ctx context.Context, strategy ContactStrategy) (ContactRecord, error) {
	if strategy.CustomerName == "" {
		return ContactRecord{}, fmt.Errorf("contact strategy names no customer")
	}
	if err := ctx.Err(); err != nil {
		return ContactRecord{}, err
	}

	message := strategy.Message
	if message == "" {
		message = strategy.ValueProposition
	}
	record := ContactRecord{
		CustomerName: strategy.CustomerName,
		Channel:      strategy.PrimaryChannel,
		Message:      message,
		Status:       ContactSent,
		NextStep:     strategy.CallToAction,
		ContactedAt:  time.Now(),
	}

	if a.svc.Tools != nil {
		if _, ok := a.svc.Tools.Get(toolSendMessage); ok {
			res := a.svc.Tools.Execute(ctx, toolSendMessage, map[string]any{
				"customer": strategy.CustomerName,
				"channel":  record.Channel,
				"message":  record.Message,
			})
			if !res.Success {
				record.Status = ContactFailed
				record.Notes = res.Error
			} else if res.Content != "" {
				record.Notes = res.Content
			}
		}
	}
	return record, nil
}

// leadFromMessage assembles a lead from message metadata and extracted
// entities. Metadata wins over text when both name a field.
func leadFromMessage(msg Message, entities map[string]string) PotentialCustomer {
	lead := PotentialCustomer{
		Name:     metaString(msg.Metadata, "customer_name"),
		Industry: metaString(msg.Metadata, "industry"),
		Scale:    metaString(msg.Metadata, "scale"),
		Region:   metaString(msg.Metadata, "region"),
		Source:   "对话请求",
	}
	if lead.Industry == "" {
		lead.Industry = entities["industry"]
	}
	if lead.Scale == "" {
		lead.Scale = entities["scale"]
	}
	if lead.Region == "" {
		lead.Region = entities["region"]
	}
	if lead.Name == "" {
		lead.Name = "目标客户"
	}
	return lead
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	s, _ := meta[key].(string)
	return s
}

func formatProfile(p CustomerProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "客户「%s」资质评估\n评分：%.2f\n", p.Name, p.Score)
	if len(p.Highlights) > 0 {
		b.WriteString("亮点：\n")
		for _, h := range p.Highlights {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if len(p.Risks) > 0 {
		b.WriteString("风险：\n")
		for _, r := range p.Risks {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	fmt.Fprintf(&b, "建议打法：%s", p.Approach)
	return b.String()
}

func formatStrategy(s ContactStrategy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "客户「%s」联系策略\n", s.CustomerName)
	fmt.Fprintf(&b, "渠道：%s（备选：%s）\n", s.PrimaryChannel, s.BackupChannel)
	fmt.Fprintf(&b, "时机：%s\n", s.BestTime)
	fmt.Fprintf(&b, "开场白：%s\n", s.Message)
	fmt.Fprintf(&b, "价值主张：%s\n", s.ValueProposition)
	fmt.Fprintf(&b, "行动号召：%s", s.CallToAction)
	return b.String()
}

func formatVisitPlan(p VisitPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "客户「%s」首次拜访计划\n", p.CustomerName)
	writeListSection(&b, "目标", p.Objectives)
	writeListSection(&b, "议程", p.Agenda)
	writeListSection(&b, "准备", p.Preparation)
	writeListSection(&b, "关键问题", p.KeyQuestions)
	writeListSection(&b, "成功标准", p.SuccessCriteria)
	return strings.TrimRight(b.String(), "\n")
}

func formatRecord(r ContactRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "已通过%s联系客户「%s」\n", r.Channel, r.CustomerName)
	fmt.Fprintf(&b, "状态：%s\n", r.Status)
	fmt.Fprintf(&b, "内容：%s\n", r.Message)
	if r.NextStep != "" {
		fmt.Fprintf(&b, "下一步：%s", r.NextStep)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeListSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s：\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func channelsForScale(scale string) (primary, backup string) {
	switch scale {
	case "大型":
		return "电话", "上门拜访"
	case "中型":
		return "邮件", "电话"
	default:
		return "微信", "邮件"
	}
}

func bestTimeForScale(scale string) string {
	switch scale {
	case "大型":
		return "周二至周四 10:00-11:30"
	case "中型":
		return "工作日 14:00-17:00"
	default:
		return "工作日 10:00-12:00"
	}
}

func approachForScale(scale string) string {
	switch scale {
	case "大型":
		return "自上而下：先触达决策层，再覆盖使用部门"
	case "中型":
		return "双线并行：业务负责人与一线使用者同时建联"
	default:
		return "自下而上：从一线使用者切入，快速验证价值"
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
