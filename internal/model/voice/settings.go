package voice

// Bounds for speech output parameters.
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinPitch  = 0.5
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0
)

// Settings 语音输出参数，仅在设置面板中修改。
type Settings struct {
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
	Voice  string  `json:"voice"`
}

// DefaultSettings returns neutral playback parameters.
func DefaultSettings(voice string) Settings {
	return Settings{Rate: 1, Pitch: 1, Volume: 1, Voice: voice}
}

// SettingsPatch carries a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	Rate   *float64 `json:"rate,omitempty"`
	Pitch  *float64 `json:"pitch,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
	Voice  *string  `json:"voice,omitempty"`
}

// Apply returns s with the patch applied and every value clamped into bounds.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.Rate != nil {
		s.Rate = *p.Rate
	}
	if p.Pitch != nil {
		s.Pitch = *p.Pitch
	}
	if p.Volume != nil {
		s.Volume = *p.Volume
	}
	if p.Voice != nil {
		s.Voice = *p.Voice
	}
	return s.Clamp()
}

// Clamp forces every numeric field into its allowed range.
func (s Settings) Clamp() Settings {
	s.Rate = clamp(s.Rate, MinRate, MaxRate)
	s.Pitch = clamp(s.Pitch, MinPitch, MaxPitch)
	s.Volume = clamp(s.Volume, MinVolume, MaxVolume)
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
