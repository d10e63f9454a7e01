package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Ingestion configuration
	SourcesFile       string
	RelevanceDir      string
	Regions           []string
	WorkerCount       int
	SchedulerInterval int
	FetchInterval     int
	FetchTimeout      int
	ForceRefresh      bool
	RunOnce           bool

	// Dedup / scoring knobs
	SimilarityThreshold float64
	HardRejectFloor     float64

	// HTTP surface
	Port         string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
