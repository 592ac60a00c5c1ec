//go:build !onnx

package embedding

import (
	"errors"

	"github.com/ukaji3/semsim-go/pkg/semsim/config"
)

// ErrONNXUnavailable is returned when the binary was built without the onnx tag.
var ErrONNXUnavailable = errors.New("onnx provider not compiled in; rebuild with -tags onnx")

// NewONNXEmbedder reports ErrONNXUnavailable.
func NewONNXEmbedder(config.ONNXConfig) (Service, error) {
	return nil, ErrONNXUnavailable
}
