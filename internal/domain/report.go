package domain

// CycleReport summarises what one poll cycle did.
type CycleReport struct {
	Observed       int
	Finished       int
	Copied         int
	CopyFailures   int
	Retired        int
	Evicted        int
	Started        int
	Stopped        int
	Reannounced    int
	Pruned         int64
	Relocated      int
	GatewayErrors  int
	RegistryErrors int
	FreePercent    int // -1 when not measured
}
