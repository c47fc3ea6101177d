// Package raster реализует ленивую декларативную модель растровых
// вычислений. Построение выражения не стоит ничего: фильтры, операции
// над каналами и масками лишь наращивают дерево операций. Стоимость
// возникает только при материализации через Source - запросе скаляра
// или массива пикселей.
package raster

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Операции дерева выражений. Сериализованное дерево и есть wire-формат
// запроса к вычислительному бэкенду.
const (
	OpCollection     = "collection"
	OpFilterDate     = "filter_date"
	OpFilterLT       = "filter_lt"
	OpFilterEQ       = "filter_eq"
	OpSelectBands    = "select_bands"
	OpMedian         = "median"
	OpImage          = "image"
	OpSelect         = "select"
	OpNormalizedDiff = "normalized_difference"
	OpClampMin       = "clamp_min"
	OpLog10          = "log10"
	OpMulConst       = "mul_const"
	OpDivConst       = "div_const"
	OpAdd            = "add"
	OpSub            = "sub"
	OpMul            = "mul"
	OpGt             = "gt"
	OpLt             = "lt"
	OpAnd            = "and"
	OpNot            = "not"
	OpFocalStdDev    = "focal_std_dev"
	OpFocalMax       = "focal_max"
	OpUpdateMask     = "update_mask"
	OpUnmask         = "unmask"
	OpPolygonMask    = "polygon_mask"
	OpPixelArea      = "pixel_area"
	OpConstant       = "constant"
	OpAddBands       = "add_bands"
)

// Node - вершина дерева операций. Узлы неизменяемы после построения;
// бэкенды обходят дерево через Args
type Node struct {
	Op      string
	Name    string
	Field   string
	Value   float64
	Str     string
	Bands   []string
	Start   time.Time
	End     time.Time
	Polygon orb.Polygon
	Args    []*Node
}

// Series - конвейер над коллекцией снимков до свёртки в композит
type Series struct {
	n *Node
}

// Expr - растровое выражение над одним изображением/композитом
type Expr struct {
	n *Node
}

// Collection начинает конвейер над именованной коллекцией снимков
func Collection(name string) Series {
	return Series{n: &Node{Op: OpCollection, Name: name}}
}

// FilterDate оставляет снимки внутри временного окна
func (s Series) FilterDate(start, end time.Time) Series {
	return Series{n: &Node{Op: OpFilterDate, Start: start, End: end, Args: []*Node{s.n}}}
}

// FilterLT оставляет снимки, у которых числовое поле метаданных меньше value
func (s Series) FilterLT(field string, value float64) Series {
	return Series{n: &Node{Op: OpFilterLT, Field: field, Value: value, Args: []*Node{s.n}}}
}

// FilterEQ оставляет снимки с точным совпадением строкового поля метаданных
func (s Series) FilterEQ(field, value string) Series {
	return Series{n: &Node{Op: OpFilterEQ, Field: field, Str: value, Args: []*Node{s.n}}}
}

// Select ограничивает снимки перечисленными каналами
func (s Series) Select(bands ...string) Series {
	return Series{n: &Node{Op: OpSelectBands, Bands: bands, Args: []*Node{s.n}}}
}

// Median сворачивает серию в попиксельный медианный композит
func (s Series) Median() Expr {
	return Expr{n: &Node{Op: OpMedian, Args: []*Node{s.n}}}
}

// Image ссылается на одиночный именованный растр (например, ЦМР)
func Image(name string) Expr {
	return Expr{n: &Node{Op: OpImage, Name: name}}
}

// Constant - растр, всюду равный value
func Constant(value float64) Expr {
	return Expr{n: &Node{Op: OpConstant, Value: value}}
}

// PolygonMask растеризует полигон: внутри 1, снаружи 0.
// Снаружи именно 0, а не "нет данных"
func PolygonMask(p orb.Polygon) Expr {
	return Expr{n: &Node{Op: OpPolygonMask, Polygon: p}}
}

// PixelArea - растр, в каждом пикселе равный его площади в м²
// на масштабе материализации
func PixelArea() Expr {
	return Expr{n: &Node{Op: OpPixelArea}}
}

func (e Expr) Select(band string) Expr {
	return Expr{n: &Node{Op: OpSelect, Bands: []string{band}, Args: []*Node{e.n}}}
}

// NormalizedDifference вычисляет (b1-b2)/(b1+b2) по двум каналам
func (e Expr) NormalizedDifference(b1, b2 string) Expr {
	return Expr{n: &Node{Op: OpNormalizedDiff, Bands: []string{b1, b2}, Args: []*Node{e.n}}}
}

// ClampMin поднимает значения ниже value до value.
// Используется как защита от log(0) перед переводом в децибелы
func (e Expr) ClampMin(value float64) Expr {
	return Expr{n: &Node{Op: OpClampMin, Value: value, Args: []*Node{e.n}}}
}

func (e Expr) Log10() Expr {
	return Expr{n: &Node{Op: OpLog10, Args: []*Node{e.n}}}
}

func (e Expr) MulConst(value float64) Expr {
	return Expr{n: &Node{Op: OpMulConst, Value: value, Args: []*Node{e.n}}}
}

func (e Expr) DivConst(value float64) Expr {
	return Expr{n: &Node{Op: OpDivConst, Value: value, Args: []*Node{e.n}}}
}

func (e Expr) Add(other Expr) Expr {
	return Expr{n: &Node{Op: OpAdd, Args: []*Node{e.n, other.n}}}
}

func (e Expr) Sub(other Expr) Expr {
	return Expr{n: &Node{Op: OpSub, Args: []*Node{e.n, other.n}}}
}

func (e Expr) Mul(other Expr) Expr {
	return Expr{n: &Node{Op: OpMul, Args: []*Node{e.n, other.n}}}
}

func (e Expr) Gt(value float64) Expr {
	return Expr{n: &Node{Op: OpGt, Value: value, Args: []*Node{e.n}}}
}

func (e Expr) Lt(value float64) Expr {
	return Expr{n: &Node{Op: OpLt, Value: value, Args: []*Node{e.n}}}
}

func (e Expr) And(other Expr) Expr {
	return Expr{n: &Node{Op: OpAnd, Args: []*Node{e.n, other.n}}}
}

func (e Expr) Not() Expr {
	return Expr{n: &Node{Op: OpNot, Args: []*Node{e.n}}}
}

// FocalStdDev - стандартное отклонение в квадратном окне
// radiusPx пикселей (локальная шероховатость поверхности)
func (e Expr) FocalStdDev(radiusPx int) Expr {
	return Expr{n: &Node{Op: OpFocalStdDev, Value: float64(radiusPx), Args: []*Node{e.n}}}
}

// FocalMax - максимум в круговой окрестности радиусом radiusM метров.
// Для булевых масок это морфологическая дилатация
func (e Expr) FocalMax(radiusM float64) Expr {
	return Expr{n: &Node{Op: OpFocalMax, Value: radiusM, Args: []*Node{e.n}}}
}

// UpdateMask скрывает пиксели, где mask ложна; скрытые пиксели
// не участвуют в зональных статистиках
func (e Expr) UpdateMask(mask Expr) Expr {
	return Expr{n: &Node{Op: OpUpdateMask, Args: []*Node{e.n, mask.n}}}
}

// Unmask подставляет value в скрытые пиксели, снимая маску
func (e Expr) Unmask(value float64) Expr {
	return Expr{n: &Node{Op: OpUnmask, Value: value, Args: []*Node{e.n}}}
}

// AddBands складывает два выражения в многоканальный растр
func (e Expr) AddBands(other Expr) Expr {
	return Expr{n: &Node{Op: OpAddBands, Args: []*Node{e.n, other.n}}}
}

// Node возвращает корень дерева операций для обхода бэкендом
func (e Expr) Node() *Node {
	return e.n
}

// MarshalJSON сериализует дерево операций в wire-формат бэкенда
func (e Expr) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeNode(e.n))
}

func encodeNode(n *Node) map[string]interface{} {
	if n == nil {
		return nil
	}

	m := map[string]interface{}{"op": n.Op}

	switch n.Op {
	case OpCollection, OpImage:
		m["name"] = n.Name
	case OpFilterDate:
		m["start"] = n.Start.Format("2006-01-02")
		m["end"] = n.End.Format("2006-01-02")
	case OpFilterLT:
		m["field"] = n.Field
		m["value"] = n.Value
	case OpFilterEQ:
		m["field"] = n.Field
		m["value"] = n.Str
	case OpSelectBands, OpSelect, OpNormalizedDiff:
		m["bands"] = n.Bands
	case OpClampMin, OpMulConst, OpDivConst, OpGt, OpLt, OpUnmask, OpConstant,
		OpFocalStdDev, OpFocalMax:
		m["value"] = n.Value
	case OpPolygonMask:
		m["polygon"] = geojson.NewGeometry(n.Polygon)
	}

	if len(n.Args) > 0 {
		args := make([]interface{}, 0, len(n.Args))
		for _, arg := range n.Args {
			args = append(args, encodeNode(arg))
		}
		m["args"] = args
	}

	return m
}
