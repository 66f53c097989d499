// Package posture scores live webcam pose landmarks.
//
// The heuristics mirror the upstream image analysis: forward-head angle taken
// at the shoulder midpoint and shoulder slope relative to horizontal, starting
// from a base score of 80 and clamped to 0..100. When the landmark set is too
// sparse to score, a demo pseudo-random score is returned instead.
package posture

import (
	"log/slog"
	"math"

	"github.com/UWellLabs/uwell/internal/models"
	"github.com/UWellLabs/uwell/internal/util"
)

// MediaPipe pose landmark indices used by the heuristics.
const (
	landmarkNose          = 0
	landmarkLeftShoulder  = 11
	landmarkRightShoulder = 12
	landmarkLeftHip       = 23
	landmarkRightHip      = 24

	// minLandmarks is the count needed to reach the hip landmarks.
	minLandmarks = 25

	// visibilityThreshold below which a landmark is treated as unseen.
	visibilityThreshold = 0.2

	baseScore = 80
)

var maintenanceStep = map[string]models.Step{
	models.LangEnglish: {
		Title:  "Posture Maintenance",
		Detail: "Keep upright posture; avoid staying in one position for too long.",
	},
	models.LangHindi: {
		Title:  "स्थिति बनाए रखें",
		Detail: "सही मुद्रा बनाए रखें; लंबे समय तक एक ही स्थिति न रखें।",
	},
}

var chinTuckStep = map[string]models.Step{
	models.LangEnglish: {
		Title:  "Chin Tuck",
		Detail: "Gently tuck your chin and hold for 5 seconds. Repeat 8-10 times.",
	},
	models.LangHindi: {
		Title:  "Chin Tuck",
		Detail: "धीरे-धीरे ठोड़ी को अंदर की ओर खींचें और 5 सेकंड रखें। 8-10 बार दोहराएँ।",
	},
}

var shoulderSqueezeStep = map[string]models.Step{
	models.LangEnglish: {
		Title:  "Shoulder Blade Squeeze",
		Detail: "Squeeze shoulder blades together, hold 3-5 seconds. Repeat 8-10 times.",
	},
	models.LangHindi: {
		Title:  "Shoulder Blade Squeeze",
		Detail: "कंधे पीछे की ओर सिकोड़ें और 3-5 सेकंड रखें। 8-10 बार दोहराएँ।",
	},
}

var messageText = map[string]string{
	models.LangEnglish: "Posture check complete. Suggestions below.",
	models.LangHindi:   "पोस्चर जांच पूरी हुई। सुझाव नीचे दिए गए हैं।",
}

var lowConfidenceText = map[string]string{
	models.LangEnglish: "Could not see your posture clearly, so here is a general check-in.",
	models.LangHindi:   "आपकी मुद्रा स्पष्ट नहीं दिखी, इसलिए यह एक सामान्य जांच है।",
}

type point struct{ x, y float64 }

// angleAt returns the angle ABC in degrees at point b, or -1 when degenerate.
func angleAt(a, b, c point) float64 {
	ba := point{a.x - b.x, a.y - b.y}
	bc := point{c.x - b.x, c.y - b.y}
	magBA := math.Hypot(ba.x, ba.y)
	magBC := math.Hypot(bc.x, bc.y)
	if magBA == 0 || magBC == 0 {
		return -1
	}
	cos := (ba.x*bc.x + ba.y*bc.y) / (magBA * magBC)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func mid(a, b point) point {
	return point{(a.x + b.x) / 2, (a.y + b.y) / 2}
}

func asPoint(l models.Landmark) point {
	return point{l.X, l.Y}
}

// Assess scores a landmark frame and builds recommendations.
func Assess(landmarks []models.Landmark, lang string) models.PostureResponse {
	lang = models.NormalizeLang(lang)

	if len(landmarks) < minLandmarks || !visible(landmarks) {
		// Demo path: not enough signal for the heuristics.
		slog.Debug("posture.Assess: sparse landmarks, using demo score", "count", len(landmarks))
		return models.PostureResponse{
			Message:         lowConfidenceText[lang],
			Score:           util.RandomScore(55, 90),
			Recommendations: []models.Step{maintenanceStep[lang]},
		}
	}

	nose := asPoint(landmarks[landmarkNose])
	leftShoulder := asPoint(landmarks[landmarkLeftShoulder])
	rightShoulder := asPoint(landmarks[landmarkRightShoulder])
	shoulderMid := mid(leftShoulder, rightShoulder)
	hipMid := mid(asPoint(landmarks[landmarkLeftHip]), asPoint(landmarks[landmarkRightHip]))

	forwardHeadAngle := angleAt(nose, shoulderMid, hipMid)
	shoulderSlopeDeg := math.Atan2(rightShoulder.y-leftShoulder.y, rightShoulder.x-leftShoulder.x) * 180 / math.Pi

	score := float64(baseScore)
	if forwardHeadAngle >= 0 && forwardHeadAngle < 75 {
		score -= (75 - forwardHeadAngle) * 0.6
	}
	score -= math.Min(20, math.Abs(shoulderSlopeDeg)*0.6)
	clamped := int(math.Max(0, math.Min(100, math.Round(score))))

	var recommendations []models.Step
	if forwardHeadAngle >= 0 && forwardHeadAngle < 70 {
		recommendations = append(recommendations, chinTuckStep[lang])
	}
	if math.Abs(shoulderSlopeDeg) > 8 {
		recommendations = append(recommendations, shoulderSqueezeStep[lang])
	}
	if len(recommendations) == 0 {
		recommendations = append(recommendations, maintenanceStep[lang])
	}

	slog.Debug("posture.Assess: frame scored", "score", clamped, "forward_head_angle", forwardHeadAngle, "shoulder_slope_deg", shoulderSlopeDeg)
	return models.PostureResponse{
		Message:         messageText[lang],
		Score:           clamped,
		Recommendations: recommendations,
	}
}

// visible reports whether the face or at least one shoulder was detected with
// usable confidence.
func visible(landmarks []models.Landmark) bool {
	nose := landmarks[landmarkNose].Visibility
	left := landmarks[landmarkLeftShoulder].Visibility
	right := landmarks[landmarkRightShoulder].Visibility
	if nose < visibilityThreshold {
		return false
	}
	return left >= visibilityThreshold || right >= visibilityThreshold
}
