package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
	"sync"
)

// Series records every written value per key in order, for offline
// analysis of a run. Data is persisted with gob.
type Series struct {
	mu     sync.Mutex
	values map[string][]float64
}

// NewSeries returns an empty series tracker.
func NewSeries() *Series {
	return &Series{values: map[string][]float64{}}
}

// Write appends each diagnostic to its series.
func (s *Series) Write(data map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range data {
		s.values[key] = append(s.values[key], value)
	}
	return nil
}

// Get returns a copy of one key's series.
func (s *Series) Get(key string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64{}, s.values[key]...)
}

// Save writes all series to filename.
func (s *Series) Save(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create data file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(s.values); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return nil
}

// LoadSeries loads the data saved by a Series tracker.
func LoadSeries(filename string) (map[string][]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loadseries: could not open data file: %v",
			err)
	}
	defer file.Close()

	var data map[string][]float64
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("loadseries: could not decode data: %v", err)
	}
	return data, nil
}
