package orchestrator

// Stage identifies which part of the page loop a Progress event was
// emitted from.
type Stage string

const (
	StageFetching         Stage = "Fetching"
	StageDownloadingPhotos Stage = "DownloadingPhotos"
	StageBuilding         Stage = "Building"
)

// Progress is one observable progress event. ObservationsTotal and
// PhotosTotal are estimates that only ever increase across the run;
// zero means "not yet known".
type Progress struct {
	Stage              Stage
	ObservationsCurrent int
	ObservationsTotal   int
	PhotosCurrent       int
	PhotosTotal         int
}

// ProgressFunc receives one Progress event per callback invocation.
// Implementations must not block significantly; the orchestrator calls
// it synchronously on its own goroutine.
type ProgressFunc func(Progress)
