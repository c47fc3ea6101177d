// Package docs MineGuard Detection Service API.
//
// Сервис обнаружения незаконной открытой добычи по спутниковым данным.
// Сопоставляет оптические и радарные сигнатуры нарушенной поверхности,
// проверяет их по цифровой модели рельефа, делит добычу на законную и
// незаконную относительно границ лицензионного участка и подсчитывает
// площади и объёмы выемки.
//
// Основные возможности:
// - Синхронное обследование участка по загруженным границам (GeoJSON/WKT)
// - Асинхронная постановка обследований в очередь через Redis Streams
// - История обследований с кешированием
// - Перекрёстная проверка находок сегментационной нейросетью
// - Артефакты: карта, 3D-модель рельефа, отчёт, маска и оверлей нейросети
//
//	Schemes: http, https
//	BasePath: /
//	Version: 1.0.0
//
//	Consumes:
//	- application/json
//	- multipart/form-data
//
//	Produces:
//	- application/json
//	- image/png
//	- image/jpeg
//
// swagger:meta
package docs
