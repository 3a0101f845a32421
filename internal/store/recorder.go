package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Recorder persists monitor events and the latest monitor record.
type Recorder interface {
	RecordMonitorEvent(ctx context.Context, monitorID string, fields Fields) error
	UpdateMonitorRecord(ctx context.Context, monitorID string, fields Fields) error
}

// MultiRecorder writes to every sink and joins their errors.
type MultiRecorder []Recorder

func (m MultiRecorder) RecordMonitorEvent(ctx context.Context, monitorID string, fields Fields) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordMonitorEvent(ctx, monitorID, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) UpdateMonitorRecord(ctx context.Context, monitorID string, fields Fields) error {
	var errs []error
	for _, r := range m {
		if err := r.UpdateMonitorRecord(ctx, monitorID, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stringValues flattens fields for stores that only hold strings.
func stringValues(fields Fields) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			out[k] = val
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		case float64:
			out[k] = fmt.Sprintf("%g", val)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
