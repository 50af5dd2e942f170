package config

const (
	// TopicJobExtract is the NSQ topic for PDF image extraction jobs.
	TopicJobExtract = "job.extract_images"

	// TopicJobTamper is the NSQ topic for tamper detection jobs.
	TopicJobTamper = "job.detect_tamper"

	// TopicJobWatermark is the NSQ topic for watermark removal jobs.
	TopicJobWatermark = "job.remove_watermark"
)

// Topics lists every job topic, in the order workers subscribe to them.
func Topics() []string {
	return []string{TopicJobExtract, TopicJobTamper, TopicJobWatermark}
}
