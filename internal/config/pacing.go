package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed pacing.yaml
var pacingDefaultData []byte

// Pacing holds the downtime-compression profile for event delivery.
// Compression factors divide the real-time gap between consecutive tick
// bundles during catch-up; 1 means real time.
type Pacing struct {
	Critical  int `yaml:"critical"`
	Important int `yaml:"important"`
	Standard  int `yaml:"standard"`
	Downtime  int `yaml:"downtime"`
	QueueCap  int `yaml:"queue_cap"`
}

// LoadPacing reads the profile from path, or falls back to the embedded
// default when path is empty.
func LoadPacing(path string) (Pacing, error) {
	data := pacingDefaultData
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Pacing{}, fmt.Errorf("read pacing profile: %w", err)
		}
		data = b
	}

	var p Pacing
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pacing{}, fmt.Errorf("parse pacing profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return Pacing{}, err
	}
	return p, nil
}

func (p Pacing) validate() error {
	if p.Critical != 1 {
		return fmt.Errorf("pacing: critical compression must be 1, got %d", p.Critical)
	}
	for name, v := range map[string]int{
		"important": p.Important,
		"standard":  p.Standard,
		"downtime":  p.Downtime,
	} {
		if v < 1 {
			return fmt.Errorf("pacing: %s compression must be >= 1, got %d", name, v)
		}
	}
	if p.QueueCap < 1 {
		return fmt.Errorf("pacing: queue_cap must be >= 1, got %d", p.QueueCap)
	}
	return nil
}
