package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ProbeSpec is the tagged variant of spec.md §4.1: exactly one of
// HttpSpec, IcmpSpec, SshSpec, ShellSpec. Replaces the source's
// heterogeneous "spec" map (spec.md §9 "Dynamic check dispatch").
type ProbeSpec interface {
	probeSpec()
}

// HttpSpec probes an HTTP(S) endpoint.
type HttpSpec struct {
	URL     string
	Code    int
	Regex   string
	Method  string // "GET" or "POST"
	Forms   map[string]string
	Timeout time.Duration
}

func (HttpSpec) probeSpec() {}

// IcmpSpec probes host reachability via ICMP echo.
type IcmpSpec struct {
	Code    uint8 // 0 = Echo Reply
	Timeout time.Duration
}

func (IcmpSpec) probeSpec() {}

// SshSpec probes SSH authentication only; it never executes a command.
type SshSpec struct {
	Port       uint16
	Username   string
	Password   string
	PrivateKey []byte
	Timeout    time.Duration
}

func (SshSpec) probeSpec() {}

// ShellSpec runs a script inside an ephemeral sandbox that provides
// Packages on PATH.
type ShellSpec struct {
	Packages []string
	Script   string
	Timeout  time.Duration
}

func (ShellSpec) probeSpec() {}

// rawProbeSpec is the on-disk shape: a "type" discriminator plus the
// union of all variant fields, matching the "spec: {type: http, ...}"
// shape in competition.yaml.
type rawProbeSpec struct {
	Type string `yaml:"type"`

	URL     string            `yaml:"url"`
	Code    int               `yaml:"code"`
	Regex   string            `yaml:"regex"`
	Method  string            `yaml:"method"`
	Forms   map[string]string `yaml:"forms"`
	Timeout int64             `yaml:"timeout"` // seconds

	Port       uint16 `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	PrivateKey string `yaml:"private_key"`

	Packages []string `yaml:"packages"`
	Script   string   `yaml:"script"`
}

// unmarshalProbeSpecYAML dispatches on the "type" field to build the concrete
// ProbeSpec variant. Any field not valid for the chosen type is ignored.
func unmarshalProbeSpecYAML(value *yaml.Node, out *ProbeSpec) error {
	var raw rawProbeSpec
	if err := value.Decode(&raw); err != nil {
		return err
	}
	timeout := time.Duration(raw.Timeout) * time.Second

	switch raw.Type {
	case "http":
		method := raw.Method
		if method == "" {
			method = "GET"
		}
		*out = HttpSpec{
			URL:     raw.URL,
			Code:    raw.Code,
			Regex:   raw.Regex,
			Method:  method,
			Forms:   raw.Forms,
			Timeout: timeout,
		}
	case "icmp":
		*out = IcmpSpec{
			Code:    uint8(raw.Code),
			Timeout: timeout,
		}
	case "ssh":
		port := raw.Port
		if port == 0 {
			port = 22
		}
		*out = SshSpec{
			Port:       port,
			Username:   raw.Username,
			Password:   raw.Password,
			PrivateKey: []byte(raw.PrivateKey),
			Timeout:    timeout,
		}
	case "nix", "shell":
		*out = ShellSpec{
			Packages: raw.Packages,
			Script:   raw.Script,
			Timeout:  timeout,
		}
	default:
		return fmt.Errorf("unknown probe spec type %q", raw.Type)
	}
	return nil
}

// probeSpecHolder lets rawCheck.Spec (a ProbeSpec interface) participate
// in yaml.v3 decoding, which needs a concrete UnmarshalYAML method.
type probeSpecHolder struct {
	ProbeSpec
}

func (h *probeSpecHolder) UnmarshalYAML(value *yaml.Node) error {
	return unmarshalProbeSpecYAML(value, &h.ProbeSpec)
}
