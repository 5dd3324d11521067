package speech

import (
	"strings"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
)

// catalog 可选音色，别名在合成前映射为服务端音色 ID
var catalog = []struct {
	alias   string
	speaker string
	name    string
	lang    string
}{
	{"default", "zh_female_vv_uranus_bigtts", "云枢默认", "zh-CN"},
	{"warm-female", "zh_female_vv_venus_bigtts", "温柔女声", "zh-CN"},
	{"calm-male", "zh_male_M392_conversation_wvae_bigtts", "沉稳男声", "zh-CN"},
	{"en-female", "en_female_amy_jupiter_bigtts", "English (Amy)", "en-US"},
}

// Voices 返回可选音色列表
func Voices() []model.Info {
	out := make([]model.Info, 0, len(catalog))
	for _, v := range catalog {
		out = append(out, model.Info{ID: v.alias, Name: v.name, Language: v.lang})
	}
	return out
}

// NormalizeVoiceAlias 别名转服务端音色 ID，未知值原样返回
func NormalizeVoiceAlias(alias string) string {
	trimmed := strings.TrimSpace(alias)
	for _, v := range catalog {
		if strings.EqualFold(v.alias, trimmed) {
			return v.speaker
		}
	}
	return trimmed
}

// speakerCandidates 请求音色优先，其次配置的默认音色，去重
func speakerCandidates(requested, fallback string) []string {
	var out []string
	add := func(s string) {
		s = NormalizeVoiceAlias(s)
		if s == "" {
			return
		}
		for _, existing := range out {
			if strings.EqualFold(existing, s) {
				return
			}
		}
		out = append(out, s)
	}
	add(requested)
	add(fallback)
	if len(out) == 0 {
		add("default")
	}
	return out
}

// resourceCandidates 根据音色推断可用的资源 ID
func resourceCandidates(speaker string) []string {
	const (
		defaultResource = "volc.service_type.10029"
		megaResource    = "volc.megatts.default"
		seedResource    = "seed-tts-2.0"
	)

	speaker = strings.TrimSpace(speaker)
	if strings.HasPrefix(speaker, "S_") {
		return []string{megaResource}
	}
	lowered := strings.ToLower(speaker)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "mars"} {
		if strings.Contains(lowered, hint) {
			return []string{seedResource, defaultResource}
		}
	}
	return []string{defaultResource, seedResource}
}
