package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/artifacts"
	"github.com/mineguard-service/internal/config"
	"github.com/mineguard-service/internal/detection"
	"github.com/mineguard-service/internal/domain"
	"github.com/mineguard-service/internal/domain/repository"
	"github.com/mineguard-service/internal/lease"
	"github.com/mineguard-service/internal/pkg/errors"
	"github.com/mineguard-service/internal/pkg/utils"
	"github.com/mineguard-service/internal/raster"
	"github.com/mineguard-service/internal/segmentation"
	"github.com/mineguard-service/internal/usecase/dto"
)

// terrainDetailThresholdM2 - порог нарушенной площади, выше которого
// модель рельефа строится на вдвое более грубом масштабе, чтобы её
// размер оставался пригодным для браузерного рендера
const terrainDetailThresholdM2 = 1_000_000

// Ensure the concrete pipeline and checker satisfy the usecase contracts
var (
	_ Detector     = (*detection.Pipeline)(nil)
	_ Corroborator = (*segmentation.CrossChecker)(nil)
)

// AnalysisUseCase - оркестратор полного обследования участка: границы,
// конвейер обнаружения, перекрёстная проверка нейросетью, артефакты и
// запись в историю
type AnalysisUseCase struct {
	detector       Detector
	checker        Corroborator
	source         raster.Source
	store          *artifacts.Store
	inspectionRepo repository.InspectionRepository
	cacheRepo      repository.CacheRepository
	detectionCfg   *config.DetectionConfig
	logger         *zap.Logger
}

// NewAnalysisUseCase создает новый AnalysisUseCase
func NewAnalysisUseCase(
	detector Detector,
	checker Corroborator,
	source raster.Source,
	store *artifacts.Store,
	inspectionRepo repository.InspectionRepository,
	cacheRepo repository.CacheRepository,
	detectionCfg *config.DetectionConfig,
	logger *zap.Logger,
) *AnalysisUseCase {
	return &AnalysisUseCase{
		detector:       detector,
		checker:        checker,
		source:         source,
		store:          store,
		inspectionRepo: inspectionRepo,
		cacheRepo:      cacheRepo,
		detectionCfg:   detectionCfg,
		logger:         logger,
	}
}

// NewJobID выдаёт короткий идентификатор задания
func NewJobID() string {
	return uuid.New().String()[:8]
}

// Analyze проводит обследование от начала до конца.
//
// Поведение при ошибках:
// - Нечитаемая геометрия границ не прерывает обследование: анализируется
//   участок по умолчанию, о чём сообщает geometry_source ответа
// - Ошибка конвейера обнаружения критическая и прерывает обследование
// - Ошибки перекрёстной проверки и построения 3D-модели не прерывают
//   обследование, соответствующие артефакты просто отсутствуют
// - Ошибка записи в историю не отменяет уже готовый результат
func (uc *AnalysisUseCase) Analyze(ctx context.Context, req dto.AnalyzeRequest) (*domain.Result, error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = NewJobID()
	}

	// 1. Границы участка: приложенный файл или участок по умолчанию
	leasePoly, geomSource := uc.resolveLease(req.Geometry)

	// 2. Временное окно выборки снимков
	window, err := resolveWindow(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Analysis started",
		zap.String("job_id", jobID),
		zap.String("geometry_source", geomSource),
		zap.String("window_start", window.Start.Format("2006-01-02")),
		zap.String("window_end", window.End.Format("2006-01-02")))

	// 3. Конвейер обнаружения
	survey, err := uc.detector.Run(ctx, leasePoly, window)
	if err != nil {
		uc.logger.Error("Detection pipeline failed",
			zap.String("job_id", jobID), zap.Error(err))
		if raster.IsBackend(err) {
			return nil, errors.ErrRasterBackend
		}
		return nil, errors.ErrAnalysisFailed
	}

	metrics := domain.Metrics{
		IllegalAreaM2: utils.Round2(survey.IllegalAreaM2),
		LegalAreaM2:   utils.Round2(survey.LegalAreaM2),
		VolumeM3:      utils.Round2(survey.IllegalVolumeM3),
		TotalVolM3:    utils.Round2(survey.TotalVolumeM3),
		AvgDepthM:     utils.Round2(survey.AvgDepthM),
		Truckloads:    survey.Truckloads,
	}

	// 4. Перекрёстная проверка нейросетью по композиту в естественных цветах
	maskURL, overlayURL := uc.crossCheck(ctx, jobID, survey)

	// 5. Артефакты: карта, 3D-модель рельефа, отчёт
	mapURL, err := uc.store.SaveMap(jobID, artifacts.BuildMap(leasePoly, survey.Zone, metrics))
	if err != nil {
		uc.logger.Error("Failed to save map artifact",
			zap.String("job_id", jobID), zap.Error(err))
		return nil, errors.ErrAnalysisFailed
	}

	modelURL := uc.buildTerrainModel(ctx, jobID, survey)

	reportURL, err := uc.store.SaveReport(jobID, &artifacts.Report{
		JobID:          jobID,
		GeneratedAt:    time.Now().UTC(),
		GeometrySource: geomSource,
		WindowStart:    window.Start.Format("2006-01-02"),
		WindowEnd:      window.End.Format("2006-01-02"),
		Metrics:        metrics,
		HasViolation:   metrics.IllegalAreaM2 > 0,
	})
	if err != nil {
		uc.logger.Error("Failed to save report artifact",
			zap.String("job_id", jobID), zap.Error(err))
		return nil, errors.ErrAnalysisFailed
	}

	result := &domain.Result{
		Status:         domain.StatusSuccess,
		JobID:          jobID,
		GeometrySource: geomSource,
		Metrics:        metrics,
		Artifacts: domain.Artifacts{
			MapURL:       mapURL,
			ModelURL:     modelURL,
			ReportURL:    reportURL,
			AIMaskURL:    maskURL,
			AIOverlayURL: overlayURL,
		},
	}

	// 6. Запись в историю и сброс её кеша
	uc.persist(ctx, req.Filename, leasePoly, result)

	uc.logger.Info("Analysis completed",
		zap.String("job_id", jobID),
		zap.Float64("illegal_area_m2", metrics.IllegalAreaM2),
		zap.Float64("volume_m3", metrics.VolumeM3),
		zap.Int("truckloads", metrics.Truckloads))

	return result, nil
}

// GetJob возвращает сохранённое обследование по идентификатору задания
func (uc *AnalysisUseCase) GetJob(ctx context.Context, jobID string) (*domain.Inspection, error) {
	if jobID == "" {
		return nil, errors.ErrInvalidRequest
	}

	inspection, err := uc.inspectionRepo.GetByJobID(ctx, jobID)
	if err != nil {
		uc.logger.Error("Failed to get inspection",
			zap.String("job_id", jobID), zap.Error(err))
		return nil, errors.ErrDatabaseError
	}
	if inspection == nil {
		return nil, errors.ErrJobNotFound
	}

	return inspection, nil
}

// resolveLease разбирает приложенные границы. Любой сбой разбора сводится
// к участку по умолчанию: обследование важнее формата файла
func (uc *AnalysisUseCase) resolveLease(geometry []byte) (orb.Polygon, string) {
	if len(geometry) == 0 {
		uc.logger.Info("No boundary file attached, using default lease")
		return lease.Default(), domain.GeometrySourceDefault
	}

	poly, err := lease.Parse(geometry)
	if err != nil {
		uc.logger.Warn("Failed to parse lease boundary, falling back to default",
			zap.Error(err))
		return lease.Default(), domain.GeometrySourceDefault
	}

	return poly, domain.GeometrySourceUploaded
}

func resolveWindow(startDate, endDate string) (domain.DateRange, error) {
	if startDate == "" && endDate == "" {
		return domain.DefaultDateRange(time.Now().UTC()), nil
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return domain.DateRange{}, errors.ErrInvalidDateRange.WithDetails(map[string]interface{}{
			"start_date": startDate,
		})
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return domain.DateRange{}, errors.ErrInvalidDateRange.WithDetails(map[string]interface{}{
			"end_date": endDate,
		})
	}

	window := domain.DateRange{Start: start, End: end}
	if err := window.Validate(); err != nil {
		return domain.DateRange{}, errors.ErrInvalidDateRange.WithDetails(map[string]interface{}{
			"reason": err.Error(),
		})
	}
	return window, nil
}

// crossCheck материализует композит в естественных цветах и прогоняет
// его через сегментационную модель. Возвращает URL маски и снимка с
// обведёнными находками; пустые строки означают, что проверка не удалась
func (uc *AnalysisUseCase) crossCheck(ctx context.Context, jobID string, survey *detection.Survey) (string, string) {
	// Композит для модели материализуется на детальном масштабе:
	// грубый съедает мелкие контуры, которые модель умеет находить
	grid, err := uc.source.Pixels(ctx, survey.TrueColor, survey.Zone, uc.detectionCfg.FineScaleM)
	if err != nil {
		uc.logger.Warn("Cross-check skipped: true color composite unavailable",
			zap.String("job_id", jobID), zap.Error(err))
		return "", ""
	}

	check, err := uc.checker.Check(grid)
	if err != nil {
		uc.logger.Warn("Cross-check skipped: segmentation failed",
			zap.String("job_id", jobID), zap.Error(err))
		return "", ""
	}

	maskURL, err := uc.store.SaveMask(jobID, check.Mask)
	if err != nil {
		uc.logger.Warn("Failed to save ai mask",
			zap.String("job_id", jobID), zap.Error(err))
		return "", ""
	}
	overlayURL, err := uc.store.SaveOverlay(jobID, check.Overlay)
	if err != nil {
		uc.logger.Warn("Failed to save ai overlay",
			zap.String("job_id", jobID), zap.Error(err))
		return maskURL, ""
	}

	return maskURL, overlayURL
}

// buildTerrainModel строит и сохраняет 3D-модель рельефа. Возвращает nil,
// когда добыча не обнаружена или модель построить не удалось
func (uc *AnalysisUseCase) buildTerrainModel(ctx context.Context, jobID string, survey *detection.Survey) *string {
	if !survey.HasDisturbance() {
		return nil
	}

	scale := uc.detectionCfg.CoarseScaleM
	if survey.TotalAreaM2 > terrainDetailThresholdM2 {
		scale *= 2
	}

	grid, err := uc.source.Pixels(ctx, survey.Terrain, survey.Zone, scale)
	if err != nil {
		uc.logger.Warn("Terrain model skipped: terrain raster unavailable",
			zap.String("job_id", jobID), zap.Error(err))
		return nil
	}

	model, err := artifacts.BuildTerrain(grid, scale)
	if err != nil {
		uc.logger.Warn("Terrain model skipped",
			zap.String("job_id", jobID), zap.Error(err))
		return nil
	}
	model.VolumeM3 = utils.Round2(survey.TotalVolumeM3)

	url, err := uc.store.SaveTerrain(jobID, model)
	if err != nil {
		uc.logger.Warn("Failed to save terrain model",
			zap.String("job_id", jobID), zap.Error(err))
		return nil
	}
	return &url
}

func (uc *AnalysisUseCase) persist(ctx context.Context, filename string, leasePoly orb.Polygon, result *domain.Result) {
	inspection := &domain.Inspection{
		ID:             uuid.New(),
		JobID:          result.JobID,
		Filename:       filename,
		Status:         result.Status,
		GeometrySource: result.GeometrySource,
		IllegalAreaM2:  result.Metrics.IllegalAreaM2,
		LegalAreaM2:    result.Metrics.LegalAreaM2,
		VolumeM3:       result.Metrics.VolumeM3,
		TotalVolM3:     result.Metrics.TotalVolM3,
		AvgDepthM:      result.Metrics.AvgDepthM,
		Truckloads:     result.Metrics.Truckloads,
		MapURL:         optionalURL(result.Artifacts.MapURL),
		ModelURL:       result.Artifacts.ModelURL,
		ReportURL:      optionalURL(result.Artifacts.ReportURL),
		AIMaskURL:      optionalURL(result.Artifacts.AIMaskURL),
		AIOverlayURL:   optionalURL(result.Artifacts.AIOverlayURL),
		LeaseRing:      utils.FlattenRing(leasePoly),
		CreatedAt:      time.Now().UTC(),
	}

	if err := uc.inspectionRepo.Save(ctx, inspection); err != nil {
		uc.logger.Error("Failed to persist inspection",
			zap.String("job_id", result.JobID), zap.Error(err))
		return
	}

	if err := uc.cacheRepo.InvalidateHistory(ctx); err != nil {
		uc.logger.Warn("Failed to invalidate history cache", zap.Error(err))
	}
}

func optionalURL(u string) *string {
	if u == "" {
		return nil
	}
	return &u
}
