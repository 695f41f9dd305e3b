package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXMetadata describes the embedded classifier next to the model file.
type ONNXMetadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
}

// ONNXGateway runs a local ONNX rock classifier, used when no remote
// workflow is reachable. It yields a single whole-frame detection with
// the winning class and its score.
type ONNXGateway struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	metadata     ONNXMetadata
}

func NewONNXGateway(modelPath, metadataPath string) (*ONNXGateway, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize ONNX environment: %w", err)
	}

	metaFile, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	var metadata ONNXMetadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("parse model metadata: %w", err)
	}
	if metadata.ImageSize < 1 || len(metadata.Classes) == 0 {
		return nil, fmt.Errorf("model metadata missing image_size or classes")
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create ONNX session: %w", err)
	}

	return &ONNXGateway{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		metadata:     metadata,
	}, nil
}

func (g *ONNXGateway) Infer(ctx context.Context, imagePath string) ([]RawDetection, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read frame spool: %w", err)
	}
	img, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	size := uint(g.metadata.ImageSize)
	scaled := resize.Resize(size, size, img, resize.Bilinear)
	input := grayscaleFloats(scaled, g.metadata.ImageSize)

	// The session reuses a single tensor pair, so runs are serialized.
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(g.inputTensor.GetData(), input)
	if err := g.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	output := g.outputTensor.GetData()
	maxIdx := 0
	maxVal := float32(-1)
	for i, val := range output {
		if i >= len(g.metadata.Classes) {
			break
		}
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	if maxVal < 0 {
		return nil, nil
	}

	return []RawDetection{{
		Class:      g.metadata.Classes[maxIdx],
		Confidence: float64(maxVal),
	}}, nil
}

func (g *ONNXGateway) Close() {
	if g.inputTensor != nil {
		g.inputTensor.Destroy()
	}
	if g.outputTensor != nil {
		g.outputTensor.Destroy()
	}
	if g.session != nil {
		g.session.Destroy()
	}
	ort.DestroyEnvironment()
}

func grayscaleFloats(img image.Image, size int) []float32 {
	bounds := img.Bounds()
	out := make([]float32, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := bounds.Min.X + x
			py := bounds.Min.Y + y
			r, gr, b, _ := img.At(px, py).RGBA()
			gray := (0.299*float32(r) + 0.587*float32(gr) + 0.114*float32(b)) / 65535.0
			out[y*size+x] = gray
		}
	}
	return out
}
