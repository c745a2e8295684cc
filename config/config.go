// Package config loads the immutable Competition tree that the rest of
// Canary runs against. Nothing outside this package mutates it after load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Competition is the immutable configuration tree for one scoring
// competition. Canary reads it once at start; no component mutates it.
type Competition struct {
	Name        string
	Teams       []Team
	Boxes       []BoxDef
	Checks      []CheckDef
	LogEndpoint RedisAddress
}

// Team is one scored team.
type Team struct {
	Name string
}

// BoxDef describes one scored box and how to turn a team into a hostname
// for it.
type BoxDef struct {
	Name             string
	Labels           map[string]string
	HostnameTemplate string
}

// HasLabel reports whether the box carries the label key, regardless of
// the configured value (set-containment semantics, spec.md §9).
func (b BoxDef) HasLabel(key string) bool {
	_, ok := b.Labels[key]
	return ok
}

// CheckDef describes one recurring probe matrix.
type CheckDef struct {
	Name          string
	Interval      time.Duration
	Points        uint32
	LabelSelector map[string]string
	Spec          ProbeSpec
}

// RedisAddress is the shared append-only log's connection info.
type RedisAddress struct {
	Host string
	Port uint16
	DB   int
}

// rawCompetitionsFile mirrors the on-disk YAML layout (spec.md §6).
type rawCompetitionsFile struct {
	Competitions []rawCompetition `yaml:"competitions"`
}

type rawCompetition struct {
	Name   string              `yaml:"name"`
	Redis  rawRedis            `yaml:"redis"`
	Teams  []rawTeam           `yaml:"teams"`
	Boxes  []rawBox            `yaml:"boxes"`
	Checks []rawCheck          `yaml:"checks"`
}

type rawRedis struct {
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`
	DB   int    `yaml:"db"`
}

type rawTeam struct {
	Name string `yaml:"name"`
}

type rawBox struct {
	Name     string            `yaml:"name"`
	Labels   map[string]string `yaml:"labels"`
	Hostname string            `yaml:"hostname"`
}

type rawCheck struct {
	Name          string            `yaml:"name"`
	Interval      int64             `yaml:"interval"`
	Points        uint32            `yaml:"points"`
	LabelSelector map[string]string `yaml:"labelSelector"`
	Spec          probeSpecHolder   `yaml:"spec"`
}

// LoadCompetitions reads and parses competition.yaml. Unknown fields are
// ignored (yaml.v3's default decode behavior).
func LoadCompetitions(path string) ([]Competition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw rawCompetitionsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make([]Competition, 0, len(raw.Competitions))
	for _, rc := range raw.Competitions {
		c := Competition{
			Name: rc.Name,
			LogEndpoint: RedisAddress{
				Host: rc.Redis.Host,
				Port: rc.Redis.Port,
				DB:   rc.Redis.DB,
			},
		}
		for _, t := range rc.Teams {
			c.Teams = append(c.Teams, Team{Name: t.Name})
		}
		for _, b := range rc.Boxes {
			c.Boxes = append(c.Boxes, BoxDef{
				Name:             b.Name,
				Labels:           b.Labels,
				HostnameTemplate: b.Hostname,
			})
		}
		for _, ch := range rc.Checks {
			cd := CheckDef{
				Name:          ch.Name,
				Interval:      time.Duration(ch.Interval) * time.Second,
				Points:        ch.Points,
				LabelSelector: ch.LabelSelector,
				Spec:          ch.Spec.ProbeSpec,
			}
			c.Checks = append(c.Checks, cd)
		}
		if err := validate(c); err != nil {
			return nil, fmt.Errorf("competition %q: %w", c.Name, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func validate(c Competition) error {
	if c.Name == "" {
		return fmt.Errorf("missing name")
	}
	for _, ch := range c.Checks {
		if ch.Interval < time.Second {
			return fmt.Errorf("check %q: interval must be >= 1s, got %s", ch.Name, ch.Interval)
		}
		if ch.Spec == nil {
			return fmt.Errorf("check %q: missing spec", ch.Name)
		}
	}
	return nil
}

// SelectCompetition picks the named competition, or the sole one when only
// one is configured. Mirrors spec.md §6's COMPETITION_NAME selection rule.
func SelectCompetition(competitions []Competition, name string) (Competition, error) {
	if len(competitions) == 0 {
		return Competition{}, fmt.Errorf("no competitions configured")
	}
	if len(competitions) == 1 && name == "" {
		return competitions[0], nil
	}
	if name == "" {
		return Competition{}, fmt.Errorf("COMPETITION_NAME must be set when more than one competition is configured")
	}
	for _, c := range competitions {
		if c.Name == name {
			return c, nil
		}
	}
	return Competition{}, fmt.Errorf("no competition named %q", name)
}
