package media

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cameraAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camera_acquire_attempts_total",
			Help: "Camera acquisition attempts by facing mode, constraint set and outcome",
		},
		[]string{"facing", "constraint", "outcome"},
	)

	imagesNormalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "images_normalized_total",
			Help: "Images passed through the normalizer by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)

func observeNormalize(source string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case IsDecodeError(err):
		outcome = "decode_error"
	default:
		outcome = "encode_error"
	}
	imagesNormalizedTotal.WithLabelValues(source, outcome).Inc()
}
