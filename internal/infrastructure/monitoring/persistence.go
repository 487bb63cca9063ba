package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SaveMetricsToFile saves a metrics snapshot to a JSON file, creating the
// destination directory if needed.
func SaveMetricsToFile(snapshot *MetricsSnapshot, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// LoadMetricsFromFile loads a metrics snapshot from a JSON file.
func LoadMetricsFromFile(filePath string) (*MetricsSnapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var snapshot MetricsSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	return &snapshot, nil
}

// SaveMetricsToFileWithTimestamp saves metrics to a timestamped filename
// under directory and returns the path used.
func SaveMetricsToFileWithTimestamp(snapshot *MetricsSnapshot, directory, prefix string) (string, error) {
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("%s-%s.json", prefix, timestamp)
	filePath := filepath.Join(directory, filename)

	if err := SaveMetricsToFile(snapshot, filePath); err != nil {
		return "", err
	}
	return filePath, nil
}

// MetricsPersistence periodically snapshots a MetricsCollector to disk, the
// way an operator would want a lightweight local record of component health
// even without a full metrics backend wired up.
type MetricsPersistence struct {
	collector    *MetricsCollector
	directory    string
	saveInterval time.Duration
	stopChan     chan struct{}
	filePrefix   string
}

func NewMetricsPersistence(collector *MetricsCollector, directory string, saveInterval time.Duration) *MetricsPersistence {
	return &MetricsPersistence{
		collector:    collector,
		directory:    directory,
		saveInterval: saveInterval,
		stopChan:     make(chan struct{}),
		filePrefix:   "metrics",
	}
}

func (mp *MetricsPersistence) SetFilePrefix(prefix string) {
	mp.filePrefix = prefix
}

// Start begins periodic saving of metrics in a background goroutine. Stop
// must be called exactly once to release it.
func (mp *MetricsPersistence) Start() {
	ticker := time.NewTicker(mp.saveInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				snapshot := mp.collector.Snapshot()
				_, _ = SaveMetricsToFileWithTimestamp(snapshot, mp.directory, mp.filePrefix)
			case <-mp.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

func (mp *MetricsPersistence) Stop() {
	close(mp.stopChan)
}

// SaveNow immediately saves the current metrics snapshot.
func (mp *MetricsPersistence) SaveNow() (string, error) {
	snapshot := mp.collector.Snapshot()
	return SaveMetricsToFileWithTimestamp(snapshot, mp.directory, mp.filePrefix)
}
