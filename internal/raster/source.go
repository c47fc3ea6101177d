package raster

import (
	"context"

	"github.com/paulmach/orb"
)

// Reducer - способ свёртки пикселей в зональной статистике
type Reducer string

const (
	ReduceMean Reducer = "mean"
	ReduceSum  Reducer = "sum"
)

// Source - абстракция растрового вычислительного бэкенда.
// Каждый вызов - блокирующая материализация выражения и единственная
// точка ожидания в конвейере; оба метода обязаны уважать ctx
type Source interface {
	// Aggregate сворачивает выражение в скаляр по региону на заданном
	// масштабе (метров на пиксель). ok=false означает, что под маской
	// не оказалось ни одного пикселя - это штатный "пустой" результат,
	// а не ошибка: вызывающий подставляет ноль
	Aggregate(ctx context.Context, expr Expr, region orb.Polygon, reducer Reducer, scale float64) (value float64, ok bool, err error)

	// Pixels материализует выражение в массив пикселей по региону
	Pixels(ctx context.Context, expr Expr, region orb.Polygon, scale float64) (*Grid, error)
}

// Grid - материализованный массив пикселей: строки сверху вниз,
// каналы вперемешку (row-major, band-interleaved). NaN помечает
// пиксели, скрытые маской
type Grid struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Bands  int       `json:"bands"`
	Values []float64 `json:"values"`
}

func NewGrid(width, height, bands int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Bands:  bands,
		Values: make([]float64, width*height*bands),
	}
}

func (g *Grid) At(x, y, band int) float64 {
	return g.Values[(y*g.Width+x)*g.Bands+band]
}

func (g *Grid) Set(x, y, band int, v float64) {
	g.Values[(y*g.Width+x)*g.Bands+band] = v
}
