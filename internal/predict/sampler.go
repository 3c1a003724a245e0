package predict

import (
	"math/rand"
	"time"

	"github.com/hitoshi/cropid/internal/model"
)

// sampleResults は識別APIが利用できない環境向けの代表的な判定例。
// デモ・オフライン動作確認で使用する。
var sampleResults = []model.PredictionResult{
	{
		Crop:            "Tomato",
		Confidence:      0.92,
		ConfidenceLevel: model.ConfidenceHigh,
		Health:          model.HealthGood,
		AreaSqm:         2500,
		RiskFactors:     []string{"Low soil moisture", "High pest activity in region"},
		Recommendations: []string{"Increase irrigation by 20%", "Apply preventive pest management spray"},
	},
	{
		Crop:            "Wheat",
		Confidence:      0.88,
		ConfidenceLevel: model.ConfidenceHigh,
		Health:          model.HealthMonitor,
		AreaSqm:         3000,
		RiskFactors:     []string{"Temperature fluctuation", "Irregular rainfall"},
		Recommendations: []string{"Continue monitoring closely", "Prepare irrigation backup plan"},
	},
	{
		Crop:            "Carrot",
		Confidence:      0.85,
		ConfidenceLevel: model.ConfidenceMedium,
		Health:          model.HealthGood,
		AreaSqm:         1500,
		RiskFactors:     []string{"Root rot risk if overwatered"},
		Recommendations: []string{"Ensure proper drainage", "Monitor soil moisture regularly"},
	},
	{
		Crop:            "Onion",
		Confidence:      0.90,
		ConfidenceLevel: model.ConfidenceHigh,
		Health:          model.HealthRisky,
		AreaSqm:         2000,
		RiskFactors:     []string{"Disease pressure high", "Weather stress indicators"},
		Recommendations: []string{"Apply fungicide immediately", "Improve air circulation"},
	},
	{
		Crop:            "Corn",
		Confidence:      0.87,
		ConfidenceLevel: model.ConfidenceHigh,
		Health:          model.HealthGood,
		AreaSqm:         3500,
		RiskFactors:     []string{},
		Recommendations: []string{"Continue regular maintenance", "Plan harvesting in 3-4 weeks"},
	},
}

// Sampler は代表例からランダムに判定結果を返す。
type Sampler struct {
	rng *rand.Rand
}

// NewSampler はSamplerを生成する。
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample は代表例から1件を選んで返す。Timestampは現在時刻が入る。
func (s *Sampler) Sample() *model.PredictionResult {
	result := sampleResults[s.rng.Intn(len(sampleResults))]
	result.Timestamp = time.Now()
	return &result
}
