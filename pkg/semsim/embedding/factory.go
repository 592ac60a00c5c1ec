package embedding

import (
	"fmt"
	"time"

	"github.com/ukaji3/semsim-go/pkg/semsim/config"
)

// New creates the embedding service selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Service, error) {
	switch cfg.Provider {
	case config.ProviderHTTP, "":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("embedding base_url is required")
		}
		return NewHTTPEmbedder(HTTPOptions{
			BaseURL:           cfg.BaseURL,
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			APIType:           cfg.APIType,
			Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}), nil
	case config.ProviderONNX:
		return NewONNXEmbedder(cfg.ONNX)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
