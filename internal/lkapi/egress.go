package lkapi

import (
	"context"

	"github.com/livekit/protocol/livekit"
)

// S3Target is the bucket room recordings are uploaded to
type S3Target struct {
	AccessKey string
	Secret    string
	Region    string
	Bucket    string
}

// RecordingPath is the object key of a room's audio recording
func RecordingPath(room string) string {
	return room + ".ogg"
}

// StartAudioRecording starts an audio-only composite egress of room into
// target and returns the egress id
func (c *Client) StartAudioRecording(ctx context.Context, room string, target S3Target) (string, error) {
	info, err := c.egress.StartRoomCompositeEgress(ctx, &livekit.RoomCompositeEgressRequest{
		RoomName:  room,
		AudioOnly: true,
		FileOutputs: []*livekit.EncodedFileOutput{{
			FileType: livekit.EncodedFileType_OGG,
			Filepath: RecordingPath(room),
			Output: &livekit.EncodedFileOutput_S3{
				S3: &livekit.S3Upload{
					AccessKey: target.AccessKey,
					Secret:    target.Secret,
					Region:    target.Region,
					Bucket:    target.Bucket,
				},
			},
		}},
	})
	if err != nil {
		return "", err
	}
	return info.EgressId, nil
}

// StopRecording stops an egress started by StartAudioRecording
func (c *Client) StopRecording(ctx context.Context, egressID string) error {
	_, err := c.egress.StopEgress(ctx, &livekit.StopEgressRequest{EgressId: egressID})
	return err
}
