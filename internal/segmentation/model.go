// Package segmentation - независимая проверка обнаружения обученной
// пиксельной моделью. Свёрточная сеть предсказывает маску нарушенной
// поверхности по цветному снимку; результат используется только для
// визуального подтверждения и никогда не смешивается с метриками
// порогового конвейера.
package segmentation

import (
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/mineguard-service/internal/config"
)

// Веса кодировщика, узкого места и декодировщика. Файл весов
// производится офлайн-обучением и только читается сервисом
var layerShapes = map[string]tensor.Shape{
	"enc1":       {8, 3, 3, 3},
	"enc2":       {16, 8, 3, 3},
	"bottleneck": {32, 16, 3, 3},
	"dec1":       {16, 32, 3, 3},
	"dec2":       {8, 16, 3, 3},
	"head":       {1, 8, 1, 1},
}

// Model - загруженная один раз сеть. Инференс сериализуется мьютексом:
// одновременные задания делят один экземпляр
type Model struct {
	mu        sync.Mutex
	weights   map[string]*tensor.Dense
	inputSize int
	loaded    bool
	logger    *zap.Logger
}

// NewModel создает модель и пытается загрузить веса. Отсутствующий или
// непригодный файл весов не ошибка: модель деградирует до пустой маски
func NewModel(cfg *config.SegmentationConfig, logger *zap.Logger) (*Model, error) {
	if cfg.InputSize <= 0 || cfg.InputSize%4 != 0 {
		return nil, fmt.Errorf("segmentation input size must be a positive multiple of 4, got %d", cfg.InputSize)
	}

	m := &Model{
		inputSize: cfg.InputSize,
		logger:    logger,
	}
	m.loadWeights(cfg.WeightsPath)
	return m, nil
}

// InputSize - сторона квадратного входа сети в пикселях
func (m *Model) InputSize() int {
	return m.inputSize
}

// Loaded сообщает, готова ли сеть к настоящему инференсу
func (m *Model) Loaded() bool {
	return m.loaded
}

func (m *Model) loadWeights(path string) {
	f, err := os.Open(path)
	if err != nil {
		m.logger.Warn("Segmentation weights not found, cross-check degrades to empty mask",
			zap.String("path", path),
			zap.Error(err))
		return
	}
	defer f.Close()

	var weights map[string]*tensor.Dense
	if err := gob.NewDecoder(f).Decode(&weights); err != nil {
		m.logger.Warn("Failed to decode segmentation weights, cross-check degrades to empty mask",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	for name, shape := range layerShapes {
		w, ok := weights[name]
		if !ok {
			m.logger.Warn("Segmentation weights are incomplete, cross-check degrades to empty mask",
				zap.String("missing_layer", name))
			return
		}
		if !w.Shape().Eq(shape) {
			m.logger.Warn("Segmentation weight shape mismatch, cross-check degrades to empty mask",
				zap.String("layer", name),
				zap.Any("expected", shape),
				zap.Any("actual", w.Shape()))
			return
		}
	}

	m.weights = weights
	m.loaded = true
	m.logger.Info("Segmentation weights loaded", zap.String("path", path))
}

// SaveWeights записывает набор весов в формате, который читает NewModel
func SaveWeights(path string, weights map[string]*tensor.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(weights); err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	return nil
}

// Predict возвращает вероятности нарушенной поверхности для входа в
// планарной раскладке каналов (3 x size x size, значения 0..1).
// Без загруженных весов результат - нулевая маска
func (m *Model) Predict(input []float64) ([]float64, error) {
	size := m.inputSize
	if len(input) != 3*size*size {
		return nil, fmt.Errorf("input length %d does not match 3x%dx%d", len(input), size, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return make([]float64, size*size), nil
	}
	return m.forward(input)
}

// forward строит свежий граф на каждый вызов: кодировщик с двумя
// понижениями, узкое место и декодировщик с двумя повышениями до
// исходного разрешения
func (m *Model) forward(input []float64) (probs []float64, err error) {
	// Несовместимые формы внутри графа приводят к панике
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inference failed: %v", r)
		}
	}()

	size := m.inputSize
	g := gorgonia.NewGraph()

	x := gorgonia.NewTensor(g, tensor.Float64, 4,
		gorgonia.WithShape(1, 3, size, size),
		gorgonia.WithValue(tensor.New(
			tensor.WithShape(1, 3, size, size),
			tensor.WithBacking(input))))

	conv := func(in *gorgonia.Node, layer string, kernel, pad int) *gorgonia.Node {
		w := gorgonia.NewTensor(g, tensor.Float64, 4,
			gorgonia.WithShape(layerShapes[layer]...),
			gorgonia.WithName(layer),
			gorgonia.WithValue(m.weights[layer]))
		return gorgonia.Must(gorgonia.Conv2d(in, w, tensor.Shape{kernel, kernel},
			[]int{pad, pad}, []int{1, 1}, []int{1, 1}))
	}
	relu := func(in *gorgonia.Node) *gorgonia.Node {
		return gorgonia.Must(gorgonia.Rectify(in))
	}
	pool := func(in *gorgonia.Node) *gorgonia.Node {
		return gorgonia.Must(gorgonia.MaxPool2D(in, tensor.Shape{2, 2}, []int{0, 0}, []int{2, 2}))
	}
	up := func(in *gorgonia.Node) *gorgonia.Node {
		return gorgonia.Must(gorgonia.Upsample2D(in, 2))
	}

	enc1 := pool(relu(conv(x, "enc1", 3, 1)))
	enc2 := pool(relu(conv(enc1, "enc2", 3, 1)))
	mid := relu(conv(enc2, "bottleneck", 3, 1))
	dec1 := relu(conv(up(mid), "dec1", 3, 1))
	dec2 := relu(conv(up(dec1), "dec2", 3, 1))
	out := gorgonia.Must(gorgonia.Sigmoid(conv(dec2, "head", 1, 0)))

	vm := gorgonia.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data, ok := out.Value().Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("unexpected inference output type %T", out.Value().Data())
	}
	if len(data) != size*size {
		return nil, fmt.Errorf("inference produced %d values, expected %d", len(data), size*size)
	}

	// Значения принадлежат машине графа, отдаем копию
	probs = make([]float64, len(data))
	copy(probs, data)
	return probs, nil
}
