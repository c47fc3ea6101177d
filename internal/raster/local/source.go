// Package local реализует растровый Source внутри процесса: сцены и
// растры заданы непрерывными функциями координат, дерево операций
// вычисляется попиксельно на запрошенном масштабе. Источник полностью
// детерминирован, что делает его пригодным и для демо-режима без
// внешних учётных данных, и для воспроизводимых тестов конвейера.
package local

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mineguard-service/internal/raster"
)

// Границы размера вычислительной сетки. Запрос на слишком мелком
// масштабе по большому региону деградирует до этого предела
const maxGridDim = 4096

// BandFunc - канал сцены как непрерывное поле значений
type BandFunc func(lon, lat float64) float64

// Scene - один снимок коллекции: дата, метаданные для фильтров
// и набор каналов
type Scene struct {
	Date  time.Time
	Meta  map[string]interface{}
	Bands map[string]BandFunc
}

// Source - локальный вычислитель растровых выражений
type Source struct {
	collections map[string][]Scene
	images      map[string]BandFunc
}

func New() *Source {
	return &Source{
		collections: make(map[string][]Scene),
		images:      make(map[string]BandFunc),
	}
}

// AddScene добавляет снимок в именованную коллекцию
func (s *Source) AddScene(collection string, scene Scene) {
	s.collections[collection] = append(s.collections[collection], scene)
}

// SetImage регистрирует одиночный именованный растр (например, ЦМР)
func (s *Source) SetImage(name string, f BandFunc) {
	s.images[name] = f
}

// Aggregate реализует raster.Source
func (s *Source) Aggregate(ctx context.Context, expr raster.Expr, region orb.Polygon, reducer raster.Reducer, scale float64) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	f, err := newFrame(region, scale)
	if err != nil {
		return 0, false, err
	}

	img, err := s.eval(expr.Node(), f, make(map[*raster.Node]*image))
	if err != nil {
		return 0, false, err
	}

	// Зональная статистика: пиксели с центром внутри региона,
	// скрытые маской (NaN) не участвуют
	values := make([]float64, 0, f.cols*f.rows)
	for y := 0; y < f.rows; y++ {
		for x := 0; x < f.cols; x++ {
			center := f.center(x, y)
			if !planar.PolygonContains(region, center) {
				continue
			}
			v := img.At(x, y, 0)
			if math.IsNaN(v) {
				continue
			}
			values = append(values, v)
		}
	}

	if len(values) == 0 {
		return 0, false, nil
	}

	switch reducer {
	case raster.ReduceMean:
		return stat.Mean(values, nil), true, nil
	case raster.ReduceSum:
		return floats.Sum(values), true, nil
	default:
		return 0, false, fmt.Errorf("unsupported reducer: %s", reducer)
	}
}

// Pixels реализует raster.Source
func (s *Source) Pixels(ctx context.Context, expr raster.Expr, region orb.Polygon, scale float64) (*raster.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := newFrame(region, scale)
	if err != nil {
		return nil, err
	}

	img, err := s.eval(expr.Node(), f, make(map[*raster.Node]*image))
	if err != nil {
		return nil, err
	}

	return img.Grid, nil
}

// frame - геометрия вычислительной сетки: регион, размеры в пикселях
// и шаг в градусах. Строка y=0 соответствует северному краю
type frame struct {
	bound      orb.Bound
	cols, rows int
	dLon, dLat float64
	scale      float64
}

func newFrame(region orb.Polygon, scale float64) (frame, error) {
	if len(region) == 0 || len(region[0]) < 4 {
		return frame{}, fmt.Errorf("region polygon is empty")
	}
	if scale <= 0 {
		return frame{}, fmt.Errorf("scale must be positive, got %g", scale)
	}

	bound := region.Bound()
	midLat := (bound.Min[1] + bound.Max[1]) / 2
	midLon := (bound.Min[0] + bound.Max[0]) / 2

	widthM := geo.Distance(orb.Point{bound.Min[0], midLat}, orb.Point{bound.Max[0], midLat})
	heightM := geo.Distance(orb.Point{midLon, bound.Min[1]}, orb.Point{midLon, bound.Max[1]})

	cols := int(math.Round(widthM / scale))
	rows := int(math.Round(heightM / scale))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if cols > maxGridDim {
		cols = maxGridDim
	}
	if rows > maxGridDim {
		rows = maxGridDim
	}

	return frame{
		bound: bound,
		cols:  cols,
		rows:  rows,
		dLon:  (bound.Max[0] - bound.Min[0]) / float64(cols),
		dLat:  (bound.Max[1] - bound.Min[1]) / float64(rows),
		scale: scale,
	}, nil
}

func (f frame) center(x, y int) orb.Point {
	return orb.Point{
		f.bound.Min[0] + (float64(x)+0.5)*f.dLon,
		f.bound.Max[1] - (float64(y)+0.5)*f.dLat,
	}
}

// image - материализованный растр с именами каналов
type image struct {
	*raster.Grid
	bands []string
	// masked выставляется у композита без сцен: любой канал в нём
	// полностью NaN, как бы он ни назывался
	masked bool
}

func newImage(f frame, bands []string) *image {
	return &image{
		Grid:  raster.NewGrid(f.cols, f.rows, len(bands)),
		bands: bands,
	}
}

func (img *image) bandIndex(name string) (int, error) {
	for i, b := range img.bands {
		if b == name {
			return i, nil
		}
	}
	if img.masked {
		// Пустой композит отдаёт NaN-канал под любым именем, чтобы
		// цепочка масок вырождалась в пустую, а не падала
		return 0, nil
	}
	return 0, fmt.Errorf("band %q not found in %v", name, img.bands)
}

func (s *Source) eval(n *raster.Node, f frame, memo map[*raster.Node]*image) (*image, error) {
	if n == nil {
		return nil, fmt.Errorf("nil expression node")
	}
	if img, ok := memo[n]; ok {
		return img, nil
	}

	img, err := s.evalNode(n, f, memo)
	if err != nil {
		return nil, err
	}
	memo[n] = img
	return img, nil
}

func (s *Source) evalNode(n *raster.Node, f frame, memo map[*raster.Node]*image) (*image, error) {
	switch n.Op {
	case raster.OpMedian:
		return s.evalMedian(n, f)

	case raster.OpImage:
		bandFn, ok := s.images[n.Name]
		if !ok {
			return nil, fmt.Errorf("unknown image: %s", n.Name)
		}
		img := newImage(f, []string{"elevation"})
		fillFromFunc(img, f, 0, bandFn)
		return img, nil

	case raster.OpConstant:
		img := newImage(f, []string{"constant"})
		for i := range img.Values {
			img.Values[i] = n.Value
		}
		return img, nil

	case raster.OpPolygonMask:
		img := newImage(f, []string{"inside"})
		for y := 0; y < f.rows; y++ {
			for x := 0; x < f.cols; x++ {
				if planar.PolygonContains(n.Polygon, f.center(x, y)) {
					img.Set(x, y, 0, 1)
				}
			}
		}
		return img, nil

	case raster.OpPixelArea:
		img := newImage(f, []string{"area"})
		area := f.scale * f.scale
		for i := range img.Values {
			img.Values[i] = area
		}
		return img, nil

	case raster.OpSelect:
		src, err := s.eval(n.Args[0], f, memo)
		if err != nil {
			return nil, err
		}
		idx, err := src.bandIndex(n.Bands[0])
		if err != nil {
			return nil, err
		}
		img := newImage(f, []string{n.Bands[0]})
		for y := 0; y < f.rows; y++ {
			for x := 0; x < f.cols; x++ {
				img.Set(x, y, 0, src.At(x, y, idx))
			}
		}
		return img, nil

	case raster.OpNormalizedDiff:
		src, err := s.eval(n.Args[0], f, memo)
		if err != nil {
			return nil, err
		}
		i1, err := src.bandIndex(n.Bands[0])
		if err != nil {
			return nil, err
		}
		i2, err := src.bandIndex(n.Bands[1])
		if err != nil {
			return nil, err
		}
		img := newImage(f, []string{"nd"})
		for y := 0; y < f.rows; y++ {
			for x := 0; x < f.cols; x++ {
				a, b := src.At(x, y, i1), src.At(x, y, i2)
				img.Set(x, y, 0, normalizedDiff(a, b))
			}
		}
		return img, nil

	case raster.OpClampMin:
		return s.evalUnary(n, f, memo, func(v float64) float64 {
			if v < n.Value {
				return n.Value
			}
			return v
		})

	case raster.OpLog10:
		return s.evalUnary(n, f, memo, func(v float64) float64 {
			if v <= 0 {
				return math.NaN()
			}
			return math.Log10(v)
		})

	case raster.OpMulConst:
		return s.evalUnary(n, f, memo, func(v float64) float64 { return v * n.Value })

	case raster.OpDivConst:
		return s.evalUnary(n, f, memo, func(v float64) float64 { return v / n.Value })

	case raster.OpGt:
		return s.evalUnary(n, f, memo, func(v float64) float64 { return boolToPixel(v > n.Value) })

	case raster.OpLt:
		return s.evalUnary(n, f, memo, func(v float64) float64 { return boolToPixel(v < n.Value) })

	case raster.OpNot:
		return s.evalUnary(n, f, memo, func(v float64) float64 { return boolToPixel(v <= 0.5) })

	case raster.OpUnmask:
		src, err := s.eval(n.Args[0], f, memo)
		if err != nil {
			return nil, err
		}
		img := newImage(f, src.bands)
		for i, v := range src.Values {
			if math.IsNaN(v) {
				img.Values[i] = n.Value
			} else {
				img.Values[i] = v
			}
		}
		return img, nil

	case raster.OpAdd:
		return s.evalBinary(n, f, memo, func(a, b float64) float64 { return a + b })

	case raster.OpSub:
		return s.evalBinary(n, f, memo, func(a, b float64) float64 { return a - b })

	case raster.OpMul:
		return s.evalBinary(n, f, memo, func(a, b float64) float64 { return a * b })

	case raster.OpAnd:
		return s.evalBinary(n, f, memo, func(a, b float64) float64 {
			return boolToPixel(a > 0.5 && b > 0.5)
		})

	case raster.OpUpdateMask:
		src, err := s.eval(n.Args[0], f, memo)
		if err != nil {
			return nil, err
		}
		mask, err := s.eval(n.Args[1], f, memo)
		if err != nil {
			return nil, err
		}
		img := newImage(f, src.bands)
		for y := 0; y < f.rows; y++ {
			for x := 0; x < f.cols; x++ {
				m := mask.At(x, y, 0)
				for b := range src.bands {
					if math.IsNaN(m) || m <= 0.5 {
						img.Set(x, y, b, math.NaN())
					} else {
						img.Set(x, y, b, src.At(x, y, b))
					}
				}
			}
		}
		return img, nil

	case raster.OpFocalStdDev:
		src, err := s.eval(n.Args[0], f, memo)
		if err != nil {
			return nil, err
		}
		return focalStdDev(src, f, int(n.Value)), nil

	case raster.OpFocalMax:
		src, err := s.eval(n.Args[0], f, memo)
		if err != nil {
			return nil, err
		}
		radiusPx := int(math.Round(n.Value / f.scale))
		if radiusPx < 1 {
			radiusPx = 1
		}
		return focalMax(src, f, radiusPx), nil

	case raster.OpAddBands:
		a, err := s.eval(n.Args[0], f, memo)
		if err != nil {
			return nil, err
		}
		b, err := s.eval(n.Args[1], f, memo)
		if err != nil {
			return nil, err
		}
		img := newImage(f, append(append([]string{}, a.bands...), b.bands...))
		for y := 0; y < f.rows; y++ {
			for x := 0; x < f.cols; x++ {
				for i := range a.bands {
					img.Set(x, y, i, a.At(x, y, i))
				}
				for i := range b.bands {
					img.Set(x, y, len(a.bands)+i, b.At(x, y, i))
				}
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("cannot materialize op %q as image", n.Op)
	}
}

func (s *Source) evalUnary(n *raster.Node, f frame, memo map[*raster.Node]*image, fn func(float64) float64) (*image, error) {
	src, err := s.eval(n.Args[0], f, memo)
	if err != nil {
		return nil, err
	}
	img := newImage(f, src.bands)
	for i, v := range src.Values {
		if math.IsNaN(v) {
			img.Values[i] = math.NaN()
		} else {
			img.Values[i] = fn(v)
		}
	}
	return img, nil
}

// evalBinary применяет поэлементную операцию; одноканальный операнд
// транслируется на все каналы другого
func (s *Source) evalBinary(n *raster.Node, f frame, memo map[*raster.Node]*image, fn func(a, b float64) float64) (*image, error) {
	a, err := s.eval(n.Args[0], f, memo)
	if err != nil {
		return nil, err
	}
	b, err := s.eval(n.Args[1], f, memo)
	if err != nil {
		return nil, err
	}

	bands := a.bands
	if len(b.bands) > len(bands) {
		bands = b.bands
	}

	img := newImage(f, bands)
	for y := 0; y < f.rows; y++ {
		for x := 0; x < f.cols; x++ {
			for i := range bands {
				av := a.At(x, y, minInt(i, len(a.bands)-1))
				bv := b.At(x, y, minInt(i, len(b.bands)-1))
				if math.IsNaN(av) || math.IsNaN(bv) {
					img.Set(x, y, i, math.NaN())
				} else {
					img.Set(x, y, i, fn(av, bv))
				}
			}
		}
	}
	return img, nil
}

// evalMedian собирает серию по цепочке фильтров и сворачивает в
// попиксельный медианный композит. Пустая серия даёт полностью
// замаскированный растр - вырожденный, но штатный результат
func (s *Source) evalMedian(n *raster.Node, f frame) (*image, error) {
	spec, err := collectSeries(n.Args[0])
	if err != nil {
		return nil, err
	}

	scenes := s.filterScenes(spec)
	bands := spec.bands
	if len(bands) == 0 {
		bands = unionBands(scenes)
	}
	if len(bands) == 0 {
		// Нечего компоновать: ни одного канала (или ни одной сцены)
		bands = []string{"empty"}
	}

	img := newImage(f, bands)
	img.masked = len(scenes) == 0
	samples := make([]float64, 0, len(scenes))

	for y := 0; y < f.rows; y++ {
		for x := 0; x < f.cols; x++ {
			center := f.center(x, y)
			for bi, band := range bands {
				samples = samples[:0]
				for _, scene := range scenes {
					bandFn, ok := scene.Bands[band]
					if !ok {
						continue
					}
					v := bandFn(center[0], center[1])
					if !math.IsNaN(v) {
						samples = append(samples, v)
					}
				}
				img.Set(x, y, bi, median(samples))
			}
		}
	}
	return img, nil
}

type seriesSpec struct {
	collection string
	start, end time.Time
	hasWindow  bool
	ltFields   []string
	ltValues   []float64
	eqFields   []string
	eqValues   []string
	bands      []string
}

func collectSeries(n *raster.Node) (seriesSpec, error) {
	var spec seriesSpec
	for n != nil {
		switch n.Op {
		case raster.OpCollection:
			spec.collection = n.Name
			return spec, nil
		case raster.OpFilterDate:
			spec.start, spec.end = n.Start, n.End
			spec.hasWindow = true
		case raster.OpFilterLT:
			spec.ltFields = append(spec.ltFields, n.Field)
			spec.ltValues = append(spec.ltValues, n.Value)
		case raster.OpFilterEQ:
			spec.eqFields = append(spec.eqFields, n.Field)
			spec.eqValues = append(spec.eqValues, n.Str)
		case raster.OpSelectBands:
			spec.bands = n.Bands
		default:
			return spec, fmt.Errorf("unexpected op %q in image collection chain", n.Op)
		}
		if len(n.Args) == 0 {
			break
		}
		n = n.Args[0]
	}
	return spec, fmt.Errorf("image collection chain has no collection leaf")
}

func (s *Source) filterScenes(spec seriesSpec) []Scene {
	var result []Scene
	for _, scene := range s.collections[spec.collection] {
		if spec.hasWindow {
			if scene.Date.Before(spec.start) || !scene.Date.Before(spec.end) {
				continue
			}
		}
		if !matchesLT(scene, spec.ltFields, spec.ltValues) {
			continue
		}
		if !matchesEQ(scene, spec.eqFields, spec.eqValues) {
			continue
		}
		result = append(result, scene)
	}
	return result
}

func matchesLT(scene Scene, fields []string, values []float64) bool {
	for i, field := range fields {
		raw, ok := scene.Meta[field]
		if !ok {
			return false
		}
		v, ok := raw.(float64)
		if !ok || v >= values[i] {
			return false
		}
	}
	return true
}

func matchesEQ(scene Scene, fields []string, values []string) bool {
	for i, field := range fields {
		raw, ok := scene.Meta[field]
		if !ok {
			return false
		}
		v, ok := raw.(string)
		if !ok || v != values[i] {
			return false
		}
	}
	return true
}

func unionBands(scenes []Scene) []string {
	seen := make(map[string]bool)
	for _, scene := range scenes {
		for band := range scene.Bands {
			seen[band] = true
		}
	}
	bands := make([]string, 0, len(seen))
	for band := range seen {
		bands = append(bands, band)
	}
	sort.Strings(bands)
	return bands
}

func fillFromFunc(img *image, f frame, band int, fn BandFunc) {
	for y := 0; y < f.rows; y++ {
		for x := 0; x < f.cols; x++ {
			center := f.center(x, y)
			img.Set(x, y, band, fn(center[0], center[1]))
		}
	}
}

// focalStdDev - стандартное отклонение в квадратном окне radiusPx.
// Пиксель с замаскированным центром остаётся замаскированным
func focalStdDev(src *image, f frame, radiusPx int) *image {
	img := newImage(f, src.bands)
	window := make([]float64, 0, (2*radiusPx+1)*(2*radiusPx+1))

	for b := range src.bands {
		for y := 0; y < f.rows; y++ {
			for x := 0; x < f.cols; x++ {
				if math.IsNaN(src.At(x, y, b)) {
					img.Set(x, y, b, math.NaN())
					continue
				}
				window = window[:0]
				for dy := -radiusPx; dy <= radiusPx; dy++ {
					for dx := -radiusPx; dx <= radiusPx; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || ny < 0 || nx >= f.cols || ny >= f.rows {
							continue
						}
						v := src.At(nx, ny, b)
						if !math.IsNaN(v) {
							window = append(window, v)
						}
					}
				}
				if len(window) < 2 {
					img.Set(x, y, b, 0)
					continue
				}
				img.Set(x, y, b, stat.StdDev(window, nil))
			}
		}
	}
	return img
}

// focalMax - максимум в круговой окрестности. Для булевых масок это
// морфологическая дилатация: единицы растут наружу, в том числе в
// замаскированные соседние пиксели
func focalMax(src *image, f frame, radiusPx int) *image {
	img := newImage(f, src.bands)
	r2 := radiusPx * radiusPx

	for b := range src.bands {
		for y := 0; y < f.rows; y++ {
			for x := 0; x < f.cols; x++ {
				best := math.NaN()
				found := false
				for dy := -radiusPx; dy <= radiusPx; dy++ {
					for dx := -radiusPx; dx <= radiusPx; dx++ {
						if dx*dx+dy*dy > r2 {
							continue
						}
						nx, ny := x+dx, y+dy
						if nx < 0 || ny < 0 || nx >= f.cols || ny >= f.rows {
							continue
						}
						v := src.At(nx, ny, b)
						if math.IsNaN(v) {
							continue
						}
						if !found || v > best {
							best = v
							found = true
						}
					}
				}
				img.Set(x, y, b, best)
			}
		}
	}
	return img
}

func normalizedDiff(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	sum := a + b
	if sum == 0 {
		return math.NaN()
	}
	return (a - b) / sum
}

func median(sorted []float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func boolToPixel(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
