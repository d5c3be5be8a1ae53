package middleware

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// endpointFile is the on-disk layout read by LoadEndpoints:
//
//	endpoints:
//	  - path: /api/auth/*
//	    methods: [POST]
//	    interval: 1m
//	    max_hits: 5
//	    lockout: 5m
type endpointFile struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// LoadEndpoints decodes and validates a YAML endpoint list. Unknown fields
// are an error. An empty document yields no endpoints.
func LoadEndpoints(r io.Reader) ([]EndpointConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f endpointFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("middleware: decode endpoints: %w", err)
	}

	for i, ep := range f.Endpoints {
		if err := ep.Validate(); err != nil {
			return nil, fmt.Errorf("middleware: endpoint %d (%q): %w", i, ep.Path, err)
		}
	}
	return f.Endpoints, nil
}

// LoadEndpointsFile reads LoadEndpoints input from a file.
func LoadEndpointsFile(name string) ([]EndpointConfig, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("middleware: open endpoints: %w", err)
	}
	defer f.Close()
	return LoadEndpoints(f)
}
