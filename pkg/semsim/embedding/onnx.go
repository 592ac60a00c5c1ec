//go:build onnx

package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ukaji3/semsim-go/pkg/semsim/config"
)

// ONNXEmbedder runs a sentence embedding model through the ONNX runtime and
// mean-pools the last hidden state over the attention mask.
type ONNXEmbedder struct {
	cfg     config.ONNXConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewONNXEmbedder loads the runtime library, tokenizer and model.
func NewONNXEmbedder(cfg config.ONNXConfig) (Service, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, errors.New("onnx model_path and tokenizer_path are required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 512
	}
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = 1024
	}
	if len(cfg.InputNames) == 0 {
		cfg.InputNames = []string{"input_ids", "attention_mask"}
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}

	if !ort.IsInitialized() {
		if cfg.Library != "" {
			ort.SetSharedLibraryPath(cfg.Library)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnx runtime: %w", err)
		}
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &ONNXEmbedder{cfg: cfg, tk: tk, session: session}, nil
}

// Model returns the model file name.
func (o *ONNXEmbedder) Model() string { return filepath.Base(o.cfg.ModelPath) }

// Close destroys the session.
func (o *ONNXEmbedder) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	return err
}

// Embed tokenizes text, runs the model and returns the pooled vector.
func (o *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, errors.New("onnx embedder is closed")
	}

	enc, err := o.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	n := len(enc.Ids)
	if n == 0 {
		return nil, errors.New("tokenize: empty encoding")
	}
	if n > o.cfg.MaxSeqLen {
		n = o.cfg.MaxSeqLen
	}

	feeds := map[string][]int64{
		"input_ids":      toInt64(enc.Ids, n),
		"attention_mask": toInt64(enc.AttentionMask, n),
		"token_type_ids": toInt64(enc.TypeIds, n),
	}
	shape := ort.NewShape(1, int64(n))
	inputs := make([]ort.Value, 0, len(o.cfg.InputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range o.cfg.InputNames {
		data, ok := feeds[name]
		if !ok {
			return nil, fmt.Errorf("unsupported model input %q", name)
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("input tensor %s: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(n), int64(o.cfg.HiddenSize)))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer out.Destroy()

	if err := o.session.Run(inputs, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	return meanPool(out.GetData(), feeds["attention_mask"], n, o.cfg.HiddenSize), nil
}

func toInt64(src []int, n int) []int64 {
	out := make([]int64, n)
	for i := 0; i < n && i < len(src); i++ {
		out[i] = int64(src[i])
	}
	return out
}

func meanPool(hidden []float32, mask []int64, n, dim int) []float32 {
	vec := make([]float32, dim)
	var count float32
	for t := 0; t < n; t++ {
		if mask[t] == 0 {
			continue
		}
		row := hidden[t*dim : (t+1)*dim]
		for j, v := range row {
			vec[j] += v
		}
		count++
	}
	if count == 0 {
		return vec
	}
	var norm float64
	for j := range vec {
		vec[j] /= count
		norm += float64(vec[j]) * float64(vec[j])
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for j := range vec {
		vec[j] *= inv
	}
	return vec
}
