package segmentation

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/raster"
)

// Result - итог перекрёстной проверки в пиксельных координатах
// исходного снимка
type Result struct {
	Mask     *image.Gray
	Overlay  *image.NRGBA
	Detected bool
}

// CrossChecker прогоняет цветной композит через модель и размечает
// найденные контуры на копии снимка
type CrossChecker struct {
	model  *Model
	logger *zap.Logger
}

func NewCrossChecker(model *Model, logger *zap.Logger) *CrossChecker {
	return &CrossChecker{
		model:  model,
		logger: logger,
	}
}

// Check строит маску модели и оверлей. Деградировавшая модель даёт
// пустую маску, и оверлей остаётся нетронутой копией снимка
func (c *CrossChecker) Check(grid *raster.Grid) (*Result, error) {
	if grid == nil || grid.Bands < 3 {
		return nil, fmt.Errorf("cross-check needs a three band true color grid")
	}
	if grid.Width <= 0 || grid.Height <= 0 {
		return nil, fmt.Errorf("cross-check got an empty grid")
	}

	src := gridToImage(grid)
	size := c.model.InputSize()

	resized := imaging.Resize(src, size, size, imaging.Lanczos)
	probs, err := c.model.Predict(normalizeCHW(resized, size))
	if err != nil {
		return nil, fmt.Errorf("segmentation predict: %w", err)
	}

	small := image.NewGray(image.Rect(0, 0, size, size))
	for i, p := range probs {
		if p > 0.5 {
			small.Pix[i] = 255
		}
	}

	// Маску возвращаем в исходное разрешение и заново бинаризуем:
	// интерполяция размывает границу в полутона
	mask := rethreshold(imaging.Resize(small, grid.Width, grid.Height, imaging.Linear))

	overlay := imaging.Clone(src)
	outlined := drawOutlines(overlay, mask)

	positives := 0
	for _, v := range mask.Pix {
		if v > 0 {
			positives++
		}
	}

	c.logger.Info("Segmentation cross-check finished",
		zap.Bool("model_loaded", c.model.Loaded()),
		zap.Bool("detected", positives > 0),
		zap.Float64("coverage", float64(positives)/float64(len(mask.Pix))),
		zap.Int("outlined_contours", outlined))

	return &Result{
		Mask:     mask,
		Overlay:  overlay,
		Detected: positives > 0,
	}, nil
}

// gridToImage переводит трёхканальную сетку в снимок.
// Замаскированные пиксели становятся чёрными
func gridToImage(grid *raster.Grid) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, grid.Width, grid.Height))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: clampByte(grid.At(x, y, 0)),
				G: clampByte(grid.At(x, y, 1)),
				B: clampByte(grid.At(x, y, 2)),
				A: 255,
			})
		}
	}
	return img
}

func clampByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

// normalizeCHW - планарная раскладка каналов со значениями 0..1
func normalizeCHW(img *image.NRGBA, size int) []float64 {
	input := make([]float64, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			px := img.NRGBAAt(x, y)
			idx := y*size + x
			input[idx] = float64(px.R) / 255
			input[plane+idx] = float64(px.G) / 255
			input[2*plane+idx] = float64(px.B) / 255
		}
	}
	return input
}

func rethreshold(img *image.NRGBA) *image.Gray {
	b := img.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).R >= 128 {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

// drawOutlines обводит внешние границы пятен маски красной линией
// толщиной в два пикселя и возвращает число обведённых пятен
func drawOutlines(overlay *image.NRGBA, mask *image.Gray) int {
	w := mask.Bounds().Dx()
	h := mask.Bounds().Dy()

	outside := outsideBackground(mask, w, h)
	red := color.NRGBA{R: 255, A: 255}

	boundary := make([]bool, w*h)
	count := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask.GrayAt(x, y).Y == 0 {
				continue
			}
			if isExternalBoundary(mask, outside, x, y, w, h) {
				boundary[y*w+x] = true
			}
		}
	}

	// Метим компоненты границы, чтобы посчитать отдельные пятна
	visited := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if boundary[y*w+x] && !visited[y*w+x] {
				count++
				floodBoundary(boundary, visited, x, y, w, h)
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !boundary[y*w+x] {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					overlay.SetNRGBA(nx, ny, red)
				}
			}
		}
	}

	return count
}

// outsideBackground - фоновые пиксели, достижимые с рамки кадра.
// Внутренние полости пятен сюда не попадают, поэтому их границы
// не обводятся
func outsideBackground(mask *image.Gray, w, h int) []bool {
	outside := make([]bool, w*h)
	stack := make([][2]int, 0, 2*(w+h))

	push := func(x, y int) {
		if x < 0 || y < 0 || x >= w || y >= h {
			return
		}
		if outside[y*w+x] || mask.GrayAt(x, y).Y != 0 {
			return
		}
		outside[y*w+x] = true
		stack = append(stack, [2]int{x, y})
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		push(p[0]-1, p[1])
		push(p[0]+1, p[1])
		push(p[0], p[1]-1)
		push(p[0], p[1]+1)
	}

	return outside
}

func isExternalBoundary(mask *image.Gray, outside []bool, x, y, w, h int) bool {
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return true
	}
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		nx, ny := x+d[0], y+d[1]
		if mask.GrayAt(nx, ny).Y == 0 && outside[ny*w+nx] {
			return true
		}
	}
	return false
}

func floodBoundary(boundary, visited []bool, startX, startY, w, h int) {
	stack := [][2]int{{startX, startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := p[0], p[1]
		if x < 0 || y < 0 || x >= w || y >= h {
			continue
		}
		if visited[y*w+x] || !boundary[y*w+x] {
			continue
		}
		visited[y*w+x] = true

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				stack = append(stack, [2]int{x + dx, y + dy})
			}
		}
	}
}
