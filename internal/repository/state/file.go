package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/oshokin/frigate-notifier/internal/config"
	domain "github.com/oshokin/frigate-notifier/internal/domain/alarm"
)

// Repository defines persistence operations for the snooze state.
type Repository interface {
	Load(ctx context.Context) (*domain.Snooze, error)
	Save(ctx context.Context, snooze *domain.Snooze) error
}

// FileRepository persists the snooze state to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// ErrNotFound is returned when no snooze has been stored yet.
var ErrNotFound = errors.New("snooze state not found")

// errMalformedState is returned when the stored document misses required fields.
var errMalformedState = errors.New("malformed snooze state")

// JSON field names of the state document.
const (
	fieldUntil     = "until"
	fieldUpdatedAt = "updated_at"
	fieldActor     = "last_actor"
	fieldHostname  = "hostname"
	fieldUsername  = "username"
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the snooze state from disk.
func (r *FileRepository) Load(_ context.Context) (*domain.Snooze, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return fromStruct(&document)
}

// Save writes the snooze state to disk using JSON representation.
func (r *FileRepository) Save(_ context.Context, snooze *domain.Snooze) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := toStruct(snooze)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

// toStruct converts the domain Snooze into a protobuf Struct document.
func toStruct(snooze *domain.Snooze) (*structpb.Struct, error) {
	until, err := formatTimestamp(snooze.Until)
	if err != nil {
		return nil, err
	}

	updatedAt, err := formatTimestamp(snooze.UpdatedAt)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{
		fieldUntil:     until,
		fieldUpdatedAt: updatedAt,
		fieldActor:     nil,
	}

	if snooze.LastActor != nil {
		fields[fieldActor] = map[string]any{
			fieldHostname: snooze.LastActor.Hostname,
			fieldUsername: snooze.LastActor.Username,
		}
	}

	return structpb.NewStruct(fields)
}

// fromStruct converts a protobuf Struct document into the domain Snooze.
func fromStruct(document *structpb.Struct) (*domain.Snooze, error) {
	fields := document.GetFields()

	untilValue, ok := fields[fieldUntil]
	if !ok {
		return nil, fmt.Errorf("%w: %s is missing", errMalformedState, fieldUntil)
	}

	until, err := parseTimestamp(untilValue.GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errMalformedState, fieldUntil, err)
	}

	updatedAt, err := parseTimestamp(fields[fieldUpdatedAt].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errMalformedState, fieldUpdatedAt, err)
	}

	var actor *domain.Actor

	if actorFields := fields[fieldActor].GetStructValue().GetFields(); actorFields != nil {
		actor = &domain.Actor{
			Hostname: actorFields[fieldHostname].GetStringValue(),
			Username: actorFields[fieldUsername].GetStringValue(),
		}
	}

	return &domain.Snooze{
		Until:     until,
		UpdatedAt: updatedAt,
		LastActor: actor,
	}, nil
}

// formatTimestamp renders t in protojson's canonical form; the zero time is "".
func formatTimestamp(t time.Time) (string, error) {
	if t.IsZero() {
		return "", nil
	}

	data, err := protojson.Marshal(timestamppb.New(t))
	if err != nil {
		return "", err
	}

	return strconv.Unquote(string(data))
}

// parseTimestamp is the inverse of formatTimestamp.
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	var ts timestamppb.Timestamp
	if err := protojson.Unmarshal([]byte(strconv.Quote(s)), &ts); err != nil {
		return time.Time{}, err
	}

	return ts.AsTime(), nil
}
