package predictor

// Bucket is a coarse risk level derived from a failure probability.
type Bucket string

const (
	BucketLow      Bucket = "Low"
	BucketMedium   Bucket = "Medium"
	BucketHigh     Bucket = "High"
	BucketCritical Bucket = "Critical"
)

// Buckets lists every bucket from most to least severe.
var Buckets = []Bucket{BucketCritical, BucketHigh, BucketMedium, BucketLow}

// BucketFor maps a probability to its bucket. Upper bounds are inclusive.
func BucketFor(p float64) Bucket {
	switch {
	case p <= 0.2:
		return BucketLow
	case p <= 0.4:
		return BucketMedium
	case p <= 0.7:
		return BucketHigh
	default:
		return BucketCritical
	}
}

// Recommendation returns the maintenance action for b.
func (b Bucket) Recommendation() string {
	switch b {
	case BucketCritical:
		return "URGENT: Schedule immediate inspection and preventive maintenance"
	case BucketHigh:
		return "HIGH PRIORITY: Schedule PM within next 7 days"
	case BucketMedium:
		return "MODERATE: Monitor closely and schedule PM within next 30 days"
	default:
		return "LOW RISK: Continue normal PM schedule"
	}
}
