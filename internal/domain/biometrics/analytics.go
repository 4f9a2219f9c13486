package biometrics

// Analytics is the per-patient mean/min/max aggregate derived from raw
// readings. Weight aggregates are grams, like the readings they come from.
type Analytics struct {
	PatientID     int64
	GlucoseMean   int
	GlucoseMin    int
	GlucoseMax    int
	SystolicMean  int
	SystolicMin   int
	SystolicMax   int
	DiastolicMean int
	DiastolicMin  int
	DiastolicMax  int
	WeightMean    int
	WeightMin     int
	WeightMax     int
}

// Sample is the bulk-export projection the aggregation job consumes.
type Sample struct {
	PatientID int64
	Glucose   *int
	Systolic  *int
	Diastolic *int
	Weight    *int
}
