package ingress

import (
	"sync"
	"time"

	"github.com/ayusman/vtrack/internal/detector"
)

// Quality summarises recent capture performance.
type Quality struct {
	FPSAvg        float64       `json:"fps_avg"`
	FPSMin        float64       `json:"fps_min"`
	ConfidenceAvg float64       `json:"confidence_avg"`
	LatencyAvg    time.Duration `json:"latency_avg"`
}

// QualityMonitor keeps a sliding window of per-frame rate, confidence and
// inference latency.
type QualityMonitor struct {
	mu       sync.Mutex
	window   int
	fps      []float64
	conf     []float64
	latency  []time.Duration
	lastSeen time.Time
}

// NewQualityMonitor creates a monitor over the last window frames.
func NewQualityMonitor(window int) *QualityMonitor {
	if window <= 0 {
		window = 60
	}
	return &QualityMonitor{window: window}
}

// Record adds one frame captured at captured whose inference took latency.
// The first frame only starts the rate clock.
func (q *QualityMonitor) Record(captured time.Time, latency time.Duration, confidence float64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.lastSeen.IsZero() {
		if dt := captured.Sub(q.lastSeen); dt > 0 {
			q.fps = push(q.fps, 1/dt.Seconds(), q.window)
		}
	}
	q.lastSeen = captured
	q.conf = push(q.conf, confidence, q.window)
	q.latency = push(q.latency, latency, q.window)
}

func push[T any](s []T, v T, max int) []T {
	s = append(s, v)
	if len(s) > max {
		s = s[len(s)-max:]
	}
	return s
}

// Stats returns window averages. An empty window reports zeros.
func (q *QualityMonitor) Stats() Quality {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out Quality
	if n := len(q.fps); n > 0 {
		out.FPSMin = q.fps[0]
		sum := 0.0
		for _, v := range q.fps {
			sum += v
			out.FPSMin = min(out.FPSMin, v)
		}
		out.FPSAvg = sum / float64(n)
	}
	if n := len(q.conf); n > 0 {
		sum := 0.0
		for _, v := range q.conf {
			sum += v
		}
		out.ConfidenceAvg = sum / float64(n)
	}
	if n := len(q.latency); n > 0 {
		var sum time.Duration
		for _, v := range q.latency {
			sum += v
		}
		out.LatencyAvg = sum / time.Duration(n)
	}
	return out
}

// poseConfidence is the mean confidence of the body landmarks, counting missing
// ones as zero.
func poseConfidence(snap *detector.Snapshot) float64 {
	if snap == nil {
		return 0
	}
	sum := 0.0
	for id := detector.LandmarkID(0); id < detector.NumPoseLandmarks; id++ {
		sum += snap.Confidence(id)
	}
	return sum / float64(detector.NumPoseLandmarks)
}
