package embed

import (
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/apperror"
)

// OnnxFactory opens real ONNX Runtime sessions for the vision and text
// graphs. It is the production SessionFactory; tests use a fake instead.
type OnnxFactory struct{}

func (OnnxFactory) OpenVision(path string) (VisionSession, error) {
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, imageSize, imageSize))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to allocate vision input tensor", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embeddingDim))
	if err != nil {
		input.Destroy()
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to allocate vision output tensor", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{"pixel_values"}, []string{"image_embeds"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		intraOpOptions())
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to open vision ONNX session", err)
	}
	return &onnxVisionSession{session: session, input: input, output: output}, nil
}

func (OnnxFactory) OpenText(path string) (TextSession, error) {
	input, err := ort.NewEmptyTensor[int64](ort.NewShape(1, maxSeqLen))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to allocate text input tensor", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embeddingDim))
	if err != nil {
		input.Destroy()
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to allocate text output tensor", err)
	}

	session, err := ort.NewAdvancedSession(path,
		[]string{"input_ids"}, []string{"text_embeds"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		intraOpOptions())
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, apperror.Wrap(apperror.KindIOFailed, "failed to open text ONNX session", err)
	}
	return &onnxTextSession{session: session, input: input, output: output}, nil
}

func intraOpOptions() *ort.SessionOptions {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil
	}
	threads := runtime.NumCPU() / 2
	if threads < 1 {
		threads = 1
	}
	opts.SetIntraOpNumThreads(threads)
	return opts
}

type onnxVisionSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (s *onnxVisionSession) Run(pixelValues []float32) ([]float32, error) {
	copy(s.input.GetData(), pixelValues)
	if err := s.session.Run(); err != nil {
		return nil, err
	}
	return append([]float32{}, s.output.GetData()...), nil
}

func (s *onnxVisionSession) Close() error {
	s.input.Destroy()
	s.output.Destroy()
	return s.session.Destroy()
}

type onnxTextSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

func (s *onnxTextSession) Run(inputIDs []int64) ([]float32, error) {
	copy(s.input.GetData(), inputIDs)
	if err := s.session.Run(); err != nil {
		return nil, err
	}
	return append([]float32{}, s.output.GetData()...), nil
}

func (s *onnxTextSession) Close() error {
	s.input.Destroy()
	s.output.Destroy()
	return s.session.Destroy()
}

// InitRuntime sets the shared library path and initializes the ONNX Runtime
// environment. Must be called once at process startup, before any
// OnnxFactory method, with the path to the platform's onnxruntime shared
// library bundled alongside the binary.
func InitRuntime(sharedLibPath string) error {
	if sharedLibPath != "" {
		ort.SetSharedLibraryPath(sharedLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return apperror.Wrap(apperror.KindIOFailed, "failed to initialize ONNX runtime", err)
	}
	return nil
}

// ShutdownRuntime releases the ONNX Runtime environment.
func ShutdownRuntime() error {
	return ort.DestroyEnvironment()
}
