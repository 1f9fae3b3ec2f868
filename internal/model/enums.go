package model

// Video status
type VideoStatus string

const (
	// VideoStatusUploading is the client-side pre-submission state; it is
	// never persisted — a row is created directly in processing.
	VideoStatusUploading  VideoStatus = "uploading"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusCompleted  VideoStatus = "completed"
	VideoStatusError      VideoStatus = "error"
)

// IsTerminal reports whether no further automatic transition occurs
// without an explicit retry.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusError
}

// Mission tags a creator assigns to a reel
type Mission string

const (
	MissionEducar   Mission = "educar"
	MissionInspirar Mission = "inspirar"
	MissionEntreter Mission = "entreter"
	MissionConectar Mission = "conectar"
	MissionVender   Mission = "vender"
)

var ValidMissions = []Mission{
	MissionEducar, MissionInspirar, MissionEntreter,
	MissionConectar, MissionVender,
}

// IsValidMission checks a tag against the known mission set
func IsValidMission(m Mission) bool {
	for _, v := range ValidMissions {
		if v == m {
			return true
		}
	}
	return false
}
