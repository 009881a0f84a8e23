package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// marketCollection is the default knowledge collection for market research.
const marketCollection = "market_intel"

// Market task types. All but marketConsult are advertised capabilities.
const (
	taskIndustryScan    = "industry_scan"
	taskProspectSource  = "prospect_sourcing"
	taskRegionAnalysis  = "region_analysis"
	taskCompetitorWatch = "competitor_watch"
	taskTrendSummary    = "trend_summary"
	marketConsult       = "market_consult"
)

const marketSystemPrompt = "你是市场研究分析师，回答要引用可核实的事实，明确区分事实与推断。"

var marketPrompts = map[string]string{
	taskIndustryScan:    "你是市场研究分析师，请给出该行业的规模、增速、集中度与准入要点。",
	taskRegionAnalysis:  "你是市场研究分析师，请分析该区域的产业结构、标杆企业与渠道特点。",
	taskCompetitorWatch: "你是市场研究分析师，请梳理主要竞争对手的定位、定价与近期动作。",
	taskTrendSummary:    "你是市场研究分析师，请总结近期趋势并给出对销售策略的影响。",
	marketConsult:       marketSystemPrompt,
}

// MaxProspects caps one prospect sourcing pass.
const MaxProspects = 20

// Prospect synthesis templates. Names are synthesized deterministically so
// repeated runs over the same criteria agree.
var (
	prospectRegions = []string{"华东", "华北", "华南", "西南", "华中"}
	prospectScales  = []string{"大型", "中型", "小型"}
)

// MarketAgent does market research: industry scans, prospect sourcing, and
// regional and competitor analysis. The discovery workflow leans on its
// deterministic prospect synthesis.
type MarketAgent struct {
	*BaseAgent
	classifier *Classifier
}

// NewMarketAgent builds the market agent on the given services.
func NewMarketAgent(svc Services) *MarketAgent {
	caps := []Capability{
		{Name: taskIndustryScan, Description: "行业规模、格局与准入分析"},
		{Name: taskProspectSource, Description: "按条件产出潜在客户候选名单"},
		{Name: taskRegionAnalysis, Description: "区域市场结构与渠道分析"},
		{Name: taskCompetitorWatch, Description: "竞争对手定位与动态跟踪"},
		{Name: taskTrendSummary, Description: "市场趋势归纳与影响评估"},
	}
	return &MarketAgent{
		BaseAgent: NewBaseAgent("market", "市场分析师", "市场研究与线索挖掘", caps, svc),
		classifier: NewClassifier(marketConsult,
			Rule{TaskType: taskProspectSource, Keywords: []string{"潜在客户", "线索", "客户名单", "候选"}},
			Rule{TaskType: taskCompetitorWatch, Keywords: []string{"竞争对手", "竞品", "对手"}},
			Rule{TaskType: taskTrendSummary, Keywords: []string{"趋势", "动向", "展望"}},
			Rule{TaskType: taskRegionAnalysis, Keywords: []string{"区域", "地区", "城市"}},
			Rule{TaskType: taskIndustryScan, Keywords: []string{"行业", "市场规模", "调研"}},
		),
	}
}

// Analyze classifies the request. Market research runs standalone.
func (a *MarketAgent) Analyze(ctx context.Context, msg Message) Analysis {
	return Analysis{
		TaskType: a.classifier.Classify(msg.Content),
		Entities: ExtractEntities(msg.Content),
	}
}

// Execute performs the classified task. Prospect sourcing is deterministic;
// the analysis tasks compose knowledge evidence with a model pass.
func (a *MarketAgent) Execute(ctx context.Context, msg Message, analysis Analysis) (TaskResult, error) {
	if analysis.TaskType == taskProspectSource {
		candidates := a.ProspectCandidates(ctx, analysis.Entities, prospectLimit(analysis.Entities))
		return TaskResult{
			Success:      true,
			ResponseType: analysis.TaskType,
			Data: map[string]any{
				"answer":     formatCandidates(candidates),
				"candidates": candidates,
			},
		}, nil
	}

	system := marketPrompts[analysis.TaskType]
	if system == "" {
		system = marketSystemPrompt
	}
	return a.composeTask(ctx, analysis, msg.Content, system, a.collection(marketCollection))
}

// Respond formats the outcome with research follow-ups.
func (a *MarketAgent) Respond(ctx context.Context, result TaskResult, collab *CollaborationResult) Response {
	suggestions, next := marketFollowups(result.ResponseType)
	resp := a.buildResponse(result, collab,
		"市场分析没有完成，请给出行业或区域后重试。", suggestions, next)
	if v, ok := result.Data["candidates"]; ok {
		resp.Metadata["candidates"] = v
	}
	return resp
}

func marketFollowups(taskType string) (suggestions, next []string) {
	switch taskType {
	case taskProspectSource:
		return []string{"候选名单基于公开市场特征推演，联系前需逐一核实"},
			[]string{"让销售助手评估候选客户资质", "发起客户发现工作流"}
	case taskCompetitorWatch:
		return []string{"关注对手的定价与渠道变化"},
			[]string{"输出差异化话术", "同步战略顾问做定位分析"}
	default:
		return []string{"补充行业与区域信息可以提升分析精度"},
			[]string{"细化目标客群", "生成潜在客户名单"}
	}
}

// ProspectCandidates synthesizes up to limit candidates matching criteria.
// Identical criteria produce identical lists; the discovery workflow depends
// on that. When the knowledge base holds matching market notes they are
// cited as the candidate source.
func (a *MarketAgent) ProspectCandidates(ctx context.Context, criteria map[string]string, limit int) []PotentialCustomer {
	if limit <= 0 || limit > MaxProspects {
		limit = MaxProspects
	}
	industry := criteria["industry"]
	if industry == "" {
		industry = "综合"
	}

	source := "市场推演"
	if industry != "综合" {
		evidence := a.consult(ctx, industry+"行业的目标企业与市场线索", a.collection(marketCollection))
		if len(evidence.Sources) > 0 {
			source = "知识库+市场推演"
		}
	}

	out := make([]PotentialCustomer, 0, limit)
	for i := 0; i < limit; i++ {
		region := criteria["region"]
		if region == "" {
			region = prospectRegions[i%len(prospectRegions)]
		}
		scale := criteria["scale"]
		if scale == "" {
			scale = prospectScales[i%len(prospectScales)]
		}
		out = append(out, PotentialCustomer{
			Name:     fmt.Sprintf("%s%s%s企业%02d", region, industry, scale, i+1),
			Industry: industry,
			Scale:    scale,
			Region:   region,
			Source:   source,
			Summary:  fmt.Sprintf("%s地区%s行业的%s企业，待核实联系方式与采购需求。", region, industry, scale),
		})
	}
	return out
}

// prospectLimit reads the requested count, defaulting to 10.
func prospectLimit(entities map[string]string) int {
	if raw, ok := entities["count"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			if n > MaxProspects {
				return MaxProspects
			}
			return n
		}
	}
	return 10
}

func formatCandidates(list []PotentialCustomer) string {
	if len(list) == 0 {
		return "没有找到符合条件的潜在客户。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "候选客户（%d家）：\n", len(list))
	for i, c := range list {
		fmt.Fprintf(&b, "%d. %s（%s / %s / %s）\n", i+1, c.Name, c.Industry, c.Scale, c.Region)
	}
	return strings.TrimRight(b.String(), "\n")
}
