package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/brensch/runger/executor/convert"
	"github.com/brensch/runger/game"
)

const (
	InputSize  = convert.FloatSize
	PolicySize = game.NumActions
	ValueSize  = 1
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

var ErrClientClosed = errors.New("onnx client closed")

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// UseCUDA appends the CUDA execution provider when it is available.
	UseCUDA bool
	Logger  *slog.Logger
}

type inferenceRequest struct {
	input    *[]float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// RuntimeStats summarises batching behaviour.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

// OnnxClient runs a policy network with ONNX Runtime. Concurrent Predict
// calls are gathered into batches by a single loop goroutine.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	done         chan struct{}
	closeOnce    sync.Once
	loopDone     chan struct{}
	cfg          OnnxClientConfig

	batches   atomic.Int64
	items     atomic.Int64
	runNanos  atomic.Int64
	lastBatch atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout})
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	if err := initRuntime(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	// Many generations may share the process; keep each session single threaded.
	_ = options.SetIntraOpNumThreads(1)
	_ = options.SetInterOpNumThreads(1)

	if cfg.UseCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				cfg.Logger.Warn("cuda provider unavailable", "error", err)
			} else {
				cfg.Logger.Info("cuda provider enabled")
			}
		} else {
			cfg.Logger.Warn("cuda options unavailable", "error", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, []string{"input"}, []string{"policy", "value"}, options)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
	go client.batchLoop()
	return client, nil
}

// initRuntime locates the shared library and initializes the process-wide
// ORT environment once.
func initRuntime() error {
	if runtime.GOOS == "linux" {
		if p := os.Getenv("ORT_SHARED_LIBRARY_PATH"); p != "" {
			ort.SetSharedLibraryPath(p)
		} else {
			cwd, _ := os.Getwd()
			for _, name := range []string{"libonnxruntime.so", "libonnxruntime.so.1"} {
				abs := filepath.Join(cwd, name)
				if _, err := os.Stat(abs); err == nil {
					ort.SetSharedLibraryPath(abs)
					break
				}
			}
		}
	}
	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("init onnxruntime: %w", ortInitErr)
	}
	return nil
}

// RuntimeAvailable reports whether the ORT shared library can be loaded.
func RuntimeAvailable() bool {
	return initRuntime() == nil
}

// Close stops the batch loop and destroys the session. Pending and later
// Predict calls fail with ErrClientClosed.
func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		err = c.session.Destroy()
	})
	return err
}

// Predict returns the action distribution and value estimate for player id.
func (c *OnnxClient) Predict(state *game.State, id game.PlayerID) ([]float32, float32, error) {
	input := convert.StateToFloat32(state, id)

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: input, respChan: respChan}:
	case <-c.done:
		convert.PutFloatBuffer(input)
		return nil, 0, ErrClientClosed
	}

	select {
	case resp := <-respChan:
		return resp.policy, resp.value, resp.err
	case <-c.loopDone:
		return nil, 0, ErrClientClosed
	}
}

func (c *OnnxClient) Stats() RuntimeStats {
	batches := c.batches.Load()
	items := c.items.Load()
	runNanos := c.runNanos.Load()
	st := RuntimeStats{
		TotalBatches:  batches,
		TotalItems:    items,
		TotalRunNanos: runNanos,
		LastBatchSize: c.lastBatch.Load(),
		QueueLen:      len(c.requestsChan),
	}
	if batches > 0 {
		st.AvgBatchSize = float64(items) / float64(batches)
		st.AvgRunMs = (float64(runNanos) / 1e6) / float64(batches)
	}
	return st
}

func (c *OnnxClient) batchLoop() {
	defer close(c.loopDone)

	batchInput := make([]float32, 0, c.cfg.BatchSize*InputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(requests) == 0 {
			return
		}
		c.runBatch(requests, batchInput)
		requests = requests[:0]
		batchInput = batchInput[:0]
	}

	for {
		select {
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, (*req.input)...)
			convert.PutFloatBuffer(req.input)
			if len(requests) >= c.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-c.done:
			c.failBatch(requests, ErrClientClosed)
			for {
				select {
				case req := <-c.requestsChan:
					convert.PutFloatBuffer(req.input)
					req.respChan <- inferenceResponse{err: ErrClientClosed}
				default:
					return
				}
			}
		}
	}
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	start := time.Now()
	n := int64(len(requests))

	inputTensor, err := ort.NewTensor(ort.NewShape(n, convert.Channels, convert.Height, convert.Width), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, int64(PolicySize)))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, ValueSize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor}); err != nil {
		c.failBatch(requests, err)
		return
	}

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()
	for i, req := range requests {
		policy := make([]float32, PolicySize)
		copy(policy, policyData[i*PolicySize:(i+1)*PolicySize])
		req.respChan <- inferenceResponse{policy: policy, value: valueData[i*ValueSize]}
	}

	c.batches.Add(1)
	c.items.Add(n)
	c.runNanos.Add(time.Since(start).Nanoseconds())
	c.lastBatch.Store(n)
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}
