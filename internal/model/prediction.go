package model

import "time"

// ConfidenceLevel は予測信頼度の区分を表す。
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "High"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceLow    ConfidenceLevel = "Low"
)

// CropHealth は作物の健全性評価を表す。
type CropHealth string

const (
	HealthGood    CropHealth = "Good"
	HealthMonitor CropHealth = "Monitor"
	HealthRisky   CropHealth = "Risky"
)

// PredictionResult は作物識別APIの応答を表す。
type PredictionResult struct {
	Crop            string          `json:"crop"`
	Confidence      float64         `json:"confidence"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
	Health          CropHealth      `json:"health"`
	AreaSqm         float64         `json:"area_sqm"`
	RiskFactors     []string        `json:"risk_factors"`
	Recommendations []string        `json:"recommendations"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Announcement はプロダクトのお知らせフィードの1件を表す。
// Summaryはサニタイズ済みHTML、PlainTextは端末表示用のテキスト。
type Announcement struct {
	Title       string
	Link        string
	Summary     string
	PlainText   string
	PublishedAt *time.Time
}
