package model

// FeatureVector is the 8-dimensional input shared by the ML anomaly
// detector (C4) and the baseline learner (C5), in the fixed order named in
// spec §4.4.
type FeatureVector struct {
	ConnectionRate       float64
	TargetCount          float64
	PortDiversity        float64
	FailedAuthRatio      float64
	AvgPacketSize        float64
	SessionDuration      float64
	UploadDownloadRatio  float64
	InterArrivalVariance float64
}

// Slice renders the vector in the fixed 8-element order C4's scaler and
// model artifact expect.
func (f FeatureVector) Slice() [8]float64 {
	return [8]float64{
		f.ConnectionRate,
		f.TargetCount,
		f.PortDiversity,
		f.FailedAuthRatio,
		f.AvgPacketSize,
		f.SessionDuration,
		f.UploadDownloadRatio,
		f.InterArrivalVariance,
	}
}

// FeatureVectorFromRecord synthesizes a per-connection feature vector
// directly from a single record when no richer windowed aggregation is
// available, mirroring original_source/analyzer/integrated_engine.py's
// fallback: bytes become avg_packet_size, duration becomes
// session_duration, and the three rate-like features that require a
// multi-record window default to 1.0 (spec §12, supplemented feature).
func FeatureVectorFromRecord(r Record) FeatureVector {
	return FeatureVector{
		ConnectionRate:       1.0,
		TargetCount:          1.0,
		PortDiversity:        1.0,
		FailedAuthRatio:      0,
		AvgPacketSize:        float64(r.OrigBytes),
		SessionDuration:      r.Duration,
		UploadDownloadRatio:  1.0,
		InterArrivalVariance: 0,
	}
}
