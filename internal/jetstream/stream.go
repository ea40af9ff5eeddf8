package jetstream

import (
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	StreamName    = "STREAMTYPE_REC"
	SubjectPrefix = "streamtype.rec."
)

// EnsureRecordingStream creates the stream that keeps raw response chunks
// for replay. Recordings expire after maxAge.
func EnsureRecordingStream(js nats.JetStreamContext, maxAge time.Duration) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ">"},
		Storage:   nats.FileStorage,
		MaxAge:    maxAge,
		Retention: nats.LimitsPolicy,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

func MetaSubject(recordingID string) string {
	return SubjectPrefix + recordingID + ".meta"
}

func ChunkSubject(recordingID string) string {
	return SubjectPrefix + recordingID + ".chunk"
}

func DoneSubject(recordingID string) string {
	return SubjectPrefix + recordingID + ".done"
}

// recordingFilter matches every subject of one recording.
func recordingFilter(recordingID string) string {
	return SubjectPrefix + recordingID + ".*"
}
