// Package recording stores call artifacts: the room audio, written by a
// LiveKit egress, and the call transcript, uploaded at call end.
package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/lkapi"
	"github.com/lexiqai/voice-agent/internal/llm"
	"github.com/lexiqai/voice-agent/internal/observability"
)

// ErrDisabled is returned when no object store credentials are configured
var ErrDisabled = errors.New("recording disabled")

const uploadTimeout = 10 * time.Second

type egressController interface {
	StartAudioRecording(ctx context.Context, room string, target lkapi.S3Target) (string, error)
	StopRecording(ctx context.Context, egressID string) error
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Transcript is the document uploaded next to a call's audio recording
type Transcript struct {
	Room         string     `json:"room"`
	JobID        string     `json:"job_id,omitempty"`
	Direction    string     `json:"direction"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      time.Time  `json:"ended_at"`
	EgressID     string     `json:"egress_id,omitempty"`
	RecordingKey string     `json:"recording_key,omitempty"`
	Turns        []llm.Turn `json:"turns"`
}

// TranscriptKey is the object key of a room's transcript
func TranscriptKey(room string) string {
	return room + ".transcript.json"
}

// Sink starts recordings and uploads transcripts. Every operation is best
// effort: callers log the error and carry on with the call.
type Sink struct {
	egress  egressController
	objects objectPutter
	target  lkapi.S3Target
}

// NewSink returns a sink for the configured bucket, or a disabled sink when
// the S3 credentials are absent
func NewSink(ctx context.Context, cfg *config.AgentConfig, egress *lkapi.Client) (*Sink, error) {
	if !cfg.RecordingEnabled() {
		return &Sink{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Sink{
		egress:  egress,
		objects: s3.NewFromConfig(awsCfg),
		target: lkapi.S3Target{
			AccessKey: cfg.S3AccessKey,
			Secret:    cfg.S3SecretKey,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
		},
	}, nil
}

// Enabled reports whether the sink will record anything
func (s *Sink) Enabled() bool {
	return s.egress != nil && s.objects != nil
}

// Start begins an audio-only recording of room and returns the egress id
func (s *Sink) Start(ctx context.Context, room string) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	id, err := s.egress.StartAudioRecording(ctx, room, s.target)
	observability.RecordRecording("egress", err == nil)
	if err != nil {
		return "", fmt.Errorf("failed to start room egress: %w", err)
	}
	return id, nil
}

// Stop ends the recording started by Start. The egress finalizes the file
// in the bucket after it stops.
func (s *Sink) Stop(ctx context.Context, egressID string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	if err := s.egress.StopRecording(ctx, egressID); err != nil {
		return fmt.Errorf("failed to stop room egress %s: %w", egressID, err)
	}
	return nil
}

// SaveTranscript uploads t under TranscriptKey(t.Room)
func (s *Sink) SaveTranscript(ctx context.Context, t Transcript) error {
	if !s.Enabled() {
		return ErrDisabled
	}

	body, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err = s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.target.Bucket),
		Key:         aws.String(TranscriptKey(t.Room)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	observability.RecordRecording("transcript", err == nil)
	if err != nil {
		return fmt.Errorf("failed to upload transcript: %w", err)
	}
	return nil
}
