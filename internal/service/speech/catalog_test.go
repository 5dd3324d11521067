package speech

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeVoiceAlias(t *testing.T) {
	assert.Equal(t, "zh_male_M392_conversation_wvae_bigtts", NormalizeVoiceAlias("calm-male"))
	assert.Equal(t, "zh_female_vv_uranus_bigtts", NormalizeVoiceAlias(" DEFAULT "))
	assert.Equal(t, "S_custom", NormalizeVoiceAlias("S_custom"))
	assert.Equal(t, "", NormalizeVoiceAlias(""))
}

func TestSpeakerCandidates(t *testing.T) {
	assert.Equal(t,
		[]string{"zh_female_vv_venus_bigtts", "zh_male_M392_conversation_wvae_bigtts"},
		speakerCandidates("warm-female", "zh_male_M392_conversation_wvae_bigtts"))
	assert.Equal(t, []string{"ZH_voice"}, speakerCandidates("ZH_voice", "zh_voice"))
	assert.Equal(t, []string{"zh_female_vv_uranus_bigtts"}, speakerCandidates("", ""))
}

func TestResourceCandidates(t *testing.T) {
	assert.Equal(t, []string{"volc.megatts.default"}, resourceCandidates("S_clone_speaker"))
	assert.Equal(t, []string{"seed-tts-2.0", "volc.service_type.10029"}, resourceCandidates("zh_female_vv_uranus_bigtts"))
	assert.Equal(t, []string{"volc.service_type.10029", "seed-tts-2.0"}, resourceCandidates("zh_male_organizer"))
}

func TestVoicesListsCatalog(t *testing.T) {
	voices := Voices()
	assert.Len(t, voices, len(catalog))
	assert.Equal(t, "default", voices[0].ID)
	for _, v := range voices {
		assert.NotEmpty(t, v.Name)
		assert.False(t, v.Custom)
	}
}
