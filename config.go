package foodproxy

import "fmt"

// UpstreamConfig holds the OpenRouter-compatible provider settings.
type UpstreamConfig struct {
	APIKey    string `env:"OPENROUTER_API_KEY,required"`
	BaseURL   string `env:"OPENROUTER_BASE_URL,default=https://openrouter.ai/api/v1"`
	Model     string `env:"OPENROUTER_MODEL,required"`
	GateModel string `env:"OPENROUTER_GATE_MODEL"`
	Referer   string `env:"OPENROUTER_HTTP_REFERER,default=https://foodproxy.app"`
	AppTitle  string `env:"OPENROUTER_APP_TITLE,default=FoodProxy"`
}

// GateModelOrDefault returns the dedicated gate model when configured,
// otherwise the primary model.
func (c UpstreamConfig) GateModelOrDefault() string {
	if c.GateModel != "" {
		return c.GateModel
	}
	return c.Model
}

// GateConfig holds the confidence-band thresholds for the food gate.
type GateConfig struct {
	MinConfidence float64 `env:"GATE_MIN_CONFIDENCE,default=0.35"`
	MedConfidence float64 `env:"GATE_MED_CONFIDENCE,default=0.65"`
}

func (c GateConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("GATE_MIN_CONFIDENCE out of range: %v", c.MinConfidence)
	}
	if c.MedConfidence < 0 || c.MedConfidence > 1 {
		return fmt.Errorf("GATE_MED_CONFIDENCE out of range: %v", c.MedConfidence)
	}
	if c.MinConfidence > c.MedConfidence {
		return fmt.Errorf("GATE_MIN_CONFIDENCE (%v) must not exceed GATE_MED_CONFIDENCE (%v)", c.MinConfidence, c.MedConfidence)
	}
	return nil
}

// ServerConfig holds the inbound HTTP surface settings.
type ServerConfig struct {
	Addr          string `env:"LISTEN_ADDR,default=:8080"`
	ProxySecret   string `env:"API_PROXY_SECRET,required"`
	MaxImageBytes int64  `env:"MAX_IMAGE_SIZE_BYTES,default=5242880"`
	LegacyHTTP200 bool   `env:"LEGACY_HTTP_200,default=false"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
}

// BedrockConfig holds the model ids for the Bedrock provider flavor.
type BedrockConfig struct {
	ModelID     string `env:"BEDROCK_MODEL_ID,required"`
	GateModelID string `env:"BEDROCK_GATE_MODEL_ID"`
}

func (c BedrockConfig) GateModelOrDefault() string {
	if c.GateModelID != "" {
		return c.GateModelID
	}
	return c.ModelID
}
