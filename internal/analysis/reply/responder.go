// Package reply maps free text to one of the assistant's canned replies.
package reply

import "strings"

// Rule pairs a keyword group with its fixed reply.
type Rule struct {
	Name     string
	Keywords []string
	Reply    string
}

// Matches reports whether lowered text contains any of the rule's keywords.
func (r Rule) Matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Fallback is returned when no rule matches.
const Fallback = "感谢您的提问！我是YYC³云枢智能助手，可以帮您完成各种任务：智慧云呼通讯服务、云枢医疗健康咨询、言语翻译多语言服务、万象社区创意交流等。请具体告诉我您想要做什么，我会为您提供最合适的解决方案。"

// FallbackRule names the generic reply in metrics and logs.
const FallbackRule = "fallback"

// Welcome is revealed every time a dialog opens.
const Welcome = `"云枢"二字蕴含深意，智慧二字如红灯笼，当"言"成为破局算法，"语"便成了未来接口——我们拆解传统数据，用0与1重构内容维度。此刻对机，便是文明升级的总枢纽。

欢迎使用YYC³ AI助手，我可以帮您完成各种创作任务。请告诉我您想要做什么？`

// rules are evaluated in order; the first match wins.
var rules = []Rule{
	{
		Name:     "image",
		Keywords: []string{"图", "画", "设计"},
		Reply:    "我可以帮您生成各种风格的图片！请描述您想要的图片内容，比如风格、主题、色彩等，我会为您创作出精美的作品。您也可以直接前往相关模块进行详细设置。",
	},
	{
		Name:     "translation",
		Keywords: []string{"翻译", "语言"},
		Reply:    "言语翻译是我的专长！我支持多种语言之间的智能翻译，不仅能准确传达意思，还能保持语言的文化内涵和表达习惯。请告诉我您需要翻译什么内容。",
	},
	{
		Name:     "health",
		Keywords: []string{"医疗", "健康"},
		Reply:    "云枢医疗系统可以为您提供智能健康咨询和医疗信息服务。我可以帮您分析健康数据、提供医疗建议、解答健康疑问。请注意，我的建议仅供参考，具体诊疗请咨询专业医生。",
	},
	{
		Name:     "community",
		Keywords: []string{"社区", "交流"},
		Reply:    "万象社区是一个充满创意和智慧的交流平台！在这里，您可以与其他用户分享创作、交流想法、获得灵感。我可以帮您连接到相关的社区功能和讨论话题。",
	},
	{
		Name:     "communications",
		Keywords: []string{"云呼", "通讯"},
		Reply:    "智慧云呼系统提供智能通讯服务，包括语音通话、视频会议、智能客服等功能。我可以帮您建立高效的沟通渠道，提升交流体验。",
	},
	{
		Name:     "concept",
		Keywords: []string{"云枢", "概念"},
		Reply: `"云枢"是YYC³平台的核心理念，代表着万象归元的智能中枢。在这里，所有的数据、算法、创意都汇聚成一个统一的智能体系。

云枢不仅是技术架构的核心，更是思维模式的革新——它将分散的智能服务整合为一个有机整体，让每一次交互都成为智慧升级的契机。

通过云枢，我们实现了从传统工具到智能伙伴的跨越，让AI不再是冰冷的程序，而是理解您需求、激发您创意的智慧助手。`,
	},
}

// Rules returns a copy of the ordered rule table.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

// Match returns the first rule whose keywords occur in input.
func Match(input string) (Rule, bool) {
	lowered := strings.ToLower(input)
	for _, rule := range rules {
		if rule.Matches(lowered) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Generate returns the canned reply for input. It never returns an empty string.
func Generate(input string) string {
	if rule, ok := Match(input); ok {
		return rule.Reply
	}
	return Fallback
}

// RuleName returns the name of the rule Generate would pick for input.
func RuleName(input string) string {
	if rule, ok := Match(input); ok {
		return rule.Name
	}
	return FallbackRule
}
